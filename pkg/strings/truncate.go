// Package strings holds small text helpers shared by the command line output.
package strings

import (
	"strings"
)

// DescriptionWidth is the widest description the operators table prints.
const DescriptionWidth = 60

// minWidth leaves room for one rune and the ellipsis.
const minWidth = 4

// Shorten collapses all whitespace in s to single spaces and cuts the result
// to at most width runes, ending it with "..." when something was cut.
// Widths below four are raised to four.
func Shorten(s string, width int) string {
	if width < minWidth {
		width = minWidth
	}
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-3]) + "..."
}
