package match

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/a3tai/pdf-form-filler/internal/pdf/extraction"
	"github.com/a3tai/pdf-form-filler/internal/record"
)

var indexSuffix = regexp.MustCompile(`\[\d+\]`)

// candidates returns the normalized labels a field may be matched under:
// its partial name without [n] index suffixes, then its alternate name.
func candidates(f extraction.FormField) []string {
	var out []string
	add := func(s string) {
		n := record.Normalize(s)
		if n == "" {
			return
		}
		for _, c := range out {
			if c == n {
				return
			}
		}
		out = append(out, n)
	}

	partial := f.PartialName
	if partial == "" {
		partial = f.Name
		if i := strings.LastIndex(partial, "."); i >= 0 {
			partial = partial[i+1:]
		}
	}
	add(indexSuffix.ReplaceAllString(partial, ""))
	add(f.AltName)
	return out
}

// tokenSet splits a normalized label into its comparable tokens
func (p *Policy) tokenSet(label string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(label) {
		if p.isStopword(tok) {
			continue
		}
		set[stem(tok)] = true
	}
	return set
}

// stem strips a plural "s"
func stem(tok string) string {
	if len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
		return tok[:len(tok)-1]
	}
	return tok
}

// overlap scores two token sets as |A∩B| / min(|A|,|B|). The score is zero
// unless at least one shared token contains a letter.
func overlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	shared := 0
	wordShared := false
	for tok := range a {
		if b[tok] {
			shared++
			if hasLetter(tok) {
				wordShared = true
			}
		}
	}
	if !wordShared {
		return 0
	}

	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(shared) / float64(smaller)
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
