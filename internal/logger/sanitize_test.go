package logger

import "testing"

func TestSanitizeString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{name: "empty", input: "", max: 10, want: ""},
		{name: "control characters removed", input: "a\x00b\nc", max: 10, want: "abc"},
		{name: "truncated", input: "abcdef", max: 3, want: "abc..."},
		{name: "unbounded", input: "hello world", max: 0, want: "hello world"},
		{name: "multibyte counted as runes", input: "héllo", max: 2, want: "hé..."},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeString(tt.input, tt.max); got != tt.want {
				t.Fatalf("SanitizeString(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
			}
		})
	}
}
