// Package sanitize normalizes user-supplied run names before they are
// stored or echoed back through the CLI and MCP tools.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxNameLength is the maximum allowed length for run names.
const MaxNameLength = 80

var (
	// reRepeatedHyphens matches 2 or more consecutive hyphens.
	reRepeatedHyphens = regexp.MustCompile(`-{2,}`)

	// reRepeatedUnderscores matches 2 or more consecutive underscores.
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

// RunName sanitizes a run name, keeping only safe characters
// ([a-zA-Z0-9-_./]) and enforcing a maximum length of MaxNameLength
// characters. Whitespace becomes a hyphen, repeated hyphens and
// underscores are collapsed and leading or trailing separators are
// trimmed.
func RunName(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range strings.TrimSpace(input) {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune('-')
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' || r == '/':
			b.WriteRune(r)
		}
	}
	s := b.String()

	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "-_./")

	if len(s) > MaxNameLength {
		s = strings.TrimRight(s[:MaxNameLength], "-_./")
	}

	return s
}
