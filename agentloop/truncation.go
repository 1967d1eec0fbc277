package agentloop

import "strings"

// Default limits for tool output and pagination.
const (
	DefaultMaxToolOutputChars = 8000
	DefaultReadLimit          = 200
	DefaultListLimit          = 200
	DefaultGrepLimit          = 100
)

// truncationMarker is appended whenever output is cut.
const truncationMarker = "\n...[truncated]..."

// Truncate limits s to at most limit runes, appending a marker when anything
// was removed. The bool reports whether truncation occurred.
func Truncate(s string, limit int) (string, bool) {
	if limit < 0 {
		limit = 0
	}
	runes := 0
	for i := range s {
		if runes == limit {
			var b strings.Builder
			b.Grow(i + len(truncationMarker))
			b.WriteString(s[:i])
			b.WriteString(truncationMarker)
			return b.String(), true
		}
		runes++
	}
	return s, false
}
