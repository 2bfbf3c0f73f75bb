// Package match resolves form fields to entries of a parsed record.
package match

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/a3tai/pdf-form-filler/internal/pdf/extraction"
	"github.com/a3tai/pdf-form-filler/internal/record"
)

// Confidence is how a field was matched to a record key
type Confidence int

const (
	None Confidence = iota
	Fuzzy
	Synonym
	Exact
)

// String returns the string representation of a Confidence
func (c Confidence) String() string {
	switch c {
	case Exact:
		return "exact"
	case Synonym:
		return "synonym"
	case Fuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// MarshalJSON encodes the confidence by name
func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// Binding is the matcher's decision for one field. Reason explains an
// unmatched field, or notes an adjustment to a written value.
type Binding struct {
	Field      extraction.FormField `json:"field"`
	MatchedKey string               `json:"matched_key,omitempty"`
	Value      string               `json:"value,omitempty"`
	Checked    bool                 `json:"checked,omitempty"`
	Confidence Confidence           `json:"confidence"`
	Score      float64              `json:"score,omitempty"`
	Reason     string               `json:"reason,omitempty"`
}

// HasValue reports whether the binding should be written
func (b Binding) HasValue() bool {
	return b.Confidence != None
}

// Summary counts bindings by outcome
type Summary struct {
	Total     int `json:"total"`
	Filled    int `json:"filled"`
	Exact     int `json:"exact"`
	Synonym   int `json:"synonym"`
	Fuzzy     int `json:"fuzzy"`
	Unmatched int `json:"unmatched"`
}

// Summarize tallies a binding list
func Summarize(bindings []Binding) Summary {
	s := Summary{Total: len(bindings)}
	for _, b := range bindings {
		switch b.Confidence {
		case Exact:
			s.Exact++
		case Synonym:
			s.Synonym++
		case Fuzzy:
			s.Fuzzy++
		default:
			s.Unmatched++
		}
	}
	s.Filled = s.Total - s.Unmatched
	return s
}

// Matcher applies a Policy. The zero value uses DefaultPolicy.
type Matcher struct {
	policy *Policy
}

// NewMatcher creates a matcher; a nil policy means DefaultPolicy
func NewMatcher(policy *Policy) *Matcher {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Matcher{policy: policy}
}

// Policy returns the matcher's policy
func (m *Matcher) Policy() *Policy {
	if m == nil || m.policy == nil {
		return DefaultPolicy()
	}
	return m.policy
}

// Match returns exactly one binding per field, in field order
func (m *Matcher) Match(fields []extraction.FormField, rec *record.Record) []Binding {
	return Match(fields, rec, m.Policy())
}

// reasonNoData marks a fillable field no record key resolved to
const reasonNoData = "no matching data"

// tiers are tried in order, each over every open field, so a field's exact
// match is never lost to an earlier field's weaker claim.
var tiers = []Confidence{Exact, Synonym, Fuzzy}

// Match resolves every field against rec. A record key is claimed by at most
// one field. Within a tier, earlier fields claim first.
func Match(fields []extraction.FormField, rec *record.Record, policy *Policy) []Binding {
	if policy == nil {
		policy = DefaultPolicy()
	}

	keys := rec.Keys()
	claimed := make(map[string]bool, len(keys))
	bindings := make([]Binding, len(fields))
	cands := make([][]string, len(fields))
	open := make([]bool, len(fields))

	for i, field := range fields {
		bindings[i] = Binding{Field: field}
		if !field.Fillable() {
			if field.ReadOnly {
				bindings[i].Reason = "field is read-only"
			} else {
				bindings[i].Reason = fmt.Sprintf("unsupported field type %q", field.PDFType)
			}
			continue
		}
		cands[i] = candidates(field)
		open[i] = true
	}

	for _, tier := range tiers {
		for i := range fields {
			if !open[i] {
				continue
			}
			key, score := policy.resolve(tier, cands[i], keys, claimed)
			if key == "" {
				continue
			}
			open[i] = false

			value, _ := rec.Get(key)
			b := Binding{Field: fields[i], MatchedKey: key, Confidence: tier, Score: score}
			if reason, ok := assign(&b, value); !ok {
				bindings[i] = Binding{Field: fields[i], Reason: reason}
				continue
			}
			claimed[key] = true
			bindings[i] = b
		}
	}

	for i := range fields {
		if open[i] {
			bindings[i].Reason = reasonNoData
		}
	}
	return bindings
}

// Supplement binds a generated value, such as today's date, to the first
// field left without data whose name or tooltip is key or a synonym of it.
// Fuzzy similarity is never used, and bound fields are never touched.
func (m *Matcher) Supplement(bindings []Binding, key, value string) []Binding {
	p := m.Policy()
	for _, tier := range []Confidence{Exact, Synonym} {
		for i := range bindings {
			b := bindings[i]
			if b.HasValue() || b.Reason != reasonNoData {
				continue
			}
			if !p.labels(tier, candidates(b.Field), key) {
				continue
			}
			b.MatchedKey, b.Confidence, b.Score, b.Reason = key, tier, 1, ""
			if _, ok := assign(&b, value); !ok {
				continue
			}
			bindings[i] = b
			return bindings
		}
	}
	return bindings
}

// labels reports whether one of cands names key at the given tier
func (p *Policy) labels(tier Confidence, cands []string, key string) bool {
	for _, c := range cands {
		if (tier == Exact && c == key) || (tier == Synonym && p.Synonymous(c, key)) {
			return true
		}
	}
	return false
}

// resolve finds the unclaimed key a field's candidates reach at one tier
func (p *Policy) resolve(tier Confidence, cands, keys []string, claimed map[string]bool) (string, float64) {
	if tier != Fuzzy {
		for _, c := range cands {
			for _, k := range keys {
				if !claimed[k] && p.labels(tier, []string{c}, k) {
					return k, 1
				}
			}
		}
		return "", 0
	}

	bestKey, bestIdx, bestScore := "", -1, 0.0
	for _, c := range cands {
		ct := p.tokenSet(c)
		for i, k := range keys {
			if claimed[k] {
				continue
			}
			score := overlap(ct, p.tokenSet(k))
			if score < p.Threshold {
				continue
			}
			if score > bestScore || (score == bestScore && i < bestIdx) {
				bestKey, bestIdx, bestScore = k, i, score
			}
		}
	}
	return bestKey, bestScore
}

// assign validates value against the field kind and sets the binding's
// written value. It reports false with a reason when the value does not fit.
func assign(b *Binding, value string) (string, bool) {
	f := b.Field
	switch f.Kind {
	case extraction.FieldKindCheckbox:
		checked, ok := parseCheckbox(value)
		if !ok {
			return fmt.Sprintf("value %q for %q is not a checkbox state", value, b.MatchedKey), false
		}
		b.Checked = checked
		b.Value = strings.TrimSpace(value)
		return "", true

	case extraction.FieldKindChoice:
		export, ok := f.ExportFor(value)
		if !ok {
			return fmt.Sprintf("value %q for %q is not one of %s", value, b.MatchedKey, strings.Join(f.Choices, ", ")), false
		}
		b.Value = export
		return "", true

	default:
		if limit := f.MaxLength; limit > 0 && utf8.RuneCountInString(value) > limit {
			value = string([]rune(value)[:limit])
			b.Reason = fmt.Sprintf("truncated to %d characters", limit)
		}
		b.Value = value
		return "", true
	}
}

func parseCheckbox(value string) (checked, ok bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "y":
		return true, true
	case "no", "false", "n":
		return false, true
	default:
		return false, false
	}
}
