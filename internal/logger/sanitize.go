package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxIDLength bounds ids in log lines (UUIDs are 36 chars).
	MaxIDLength = 128
	// MaxTextPreview bounds user or model text copied into log lines.
	MaxTextPreview = 200
	MaxPathLength  = 500
)

// SanitizeString removes control characters, fixes invalid UTF-8 and truncates to maxLength runes.
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if !unicode.IsPrint(r) && r != ' ' {
			continue
		}
		if maxLength > 0 && n >= maxLength {
			b.WriteString("...")
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// Preview is SanitizeString with the default text preview bound.
func Preview(s string) string {
	return SanitizeString(s, MaxTextPreview)
}

func SanitizeID(id string) string {
	return SanitizeString(id, MaxIDLength)
}

func SanitizePath(path string) string {
	return SanitizeString(path, MaxPathLength)
}
