package nlp

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when model output carries no JSON object.
var ErrNoJSON = errors.New("no json object in model output")

// ExtractJSON decodes the span from the first '{' to the last '}' of raw
// into v. Models tend to wrap JSON in prose or code fences.
func ExtractJSON(raw string, v any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return ErrNoJSON
	}
	return json.Unmarshal([]byte(raw[start:end+1]), v)
}
