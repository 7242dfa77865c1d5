package utils

import (
	"strings"
	"unicode"
)

// Dedent removes the leading spaces of each line of multilines and its trailing spaces.
// It allows writing command help as indented raw strings.
func Dedent(multilines string) string {
	var sb strings.Builder
	for line := range strings.Lines(strings.TrimRightFunc(multilines, unicode.IsSpace)) {
		sb.WriteString(strings.TrimLeftFunc(line, unicode.IsSpace))
	}
	return sb.String()
}
