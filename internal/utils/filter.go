package utils

import (
	"strings"
	"unicode"
)

// ContainsFold checks if s contains substr, ignoring case
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// HasSpace reports whether s contains any whitespace
func HasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}
