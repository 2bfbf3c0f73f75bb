package record

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds a label or field name into a comparable form: lowercase
// words separated by single spaces. "Driver's License #" becomes
// "drivers license number" and "lastName" becomes "last name".
//
// Normalize is idempotent.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	runes := []rune(s)

	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for i, r := range runes {
		switch {
		case isApostrophe(r):
			// "driver's" -> "drivers"; prev is kept so camel splitting still sees the letter
			continue
		case r == '#':
			if i+1 < len(runes) && unicode.IsDigit(runes[i+1]) {
				b.WriteByte(' ')
			} else {
				b.WriteString(" number ")
			}
		case unicode.IsLetter(r):
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				b.WriteByte(' ')
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsDigit(r):
			if unicode.IsLetter(prev) {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
		prev = r
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func isApostrophe(r rune) bool {
	switch r {
	case '\'', '’', '‘', '`':
		return true
	}
	return false
}
