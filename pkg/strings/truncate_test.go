package strings

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateMiddle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"keeps both ends", "https://graph.microsoft.com", 13, "https...t.com"},
		{"odd budget favours head", "abcdefghij", 8, "abc...ij"},
		{"whitespace collapsed", "hello\n\n  world", 20, "hello world"},
		{"empty", "", 10, ""},
		{"max below minimum is clamped", "abcdefghij", 1, "a...j"},
		{"unicode counted in runes", "äöüäöüäöüä", 7, "äö...üä"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateMiddle(tt.input, tt.maxLen)
			assert.Equal(t, tt.expected, got)
			if tt.maxLen >= MinTruncateLen {
				assert.LessOrEqual(t, utf8.RuneCountInString(got), tt.maxLen)
			}
		})
	}
}
