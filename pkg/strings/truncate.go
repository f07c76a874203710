package strings

import (
	"strings"
)

// DefaultColumnMaxLen is the widest a value is printed in table output.
const DefaultColumnMaxLen = 60

// MinTruncateLen is the smallest maxLen that still leaves room for one
// character on each side of the ellipsis.
const MinTruncateLen = 5

const ellipsis = "..."

// TruncateMiddle collapses whitespace in s to single spaces and, when the
// result is longer than maxLen runes, replaces its middle with "...". Both
// ends are kept because resource URIs and UPNs differ at either end.
//
// maxLen below MinTruncateLen is raised to MinTruncateLen.
func TruncateMiddle(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}

	keep := maxLen - len(ellipsis)
	head := (keep + 1) / 2
	tail := keep - head
	return string(runes[:head]) + ellipsis + string(runes[len(runes)-tail:])
}
