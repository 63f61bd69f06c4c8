// Package textproc normalizes free-form user text before it enters the
// generation prompt.
package textproc

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize trims the text and collapses every run of whitespace, newlines
// and tabs included, to a single ASCII space. The result is NFC-composed so
// visually identical inputs compare and hash the same. Total function: any
// input, including the empty string, yields a valid result.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}
