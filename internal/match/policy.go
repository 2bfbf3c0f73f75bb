package match

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/a3tai/pdf-form-filler/internal/record"
)

// DefaultThreshold is the minimum fuzzy score accepted as a match
const DefaultThreshold = 0.6

// Policy is the tunable part of matching: synonym groups, fuzzy threshold and
// stopwords. Build one with DefaultPolicy or LoadPolicy; a Policy is
// read-only after construction and safe for concurrent use.
type Policy struct {
	Threshold float64
	Synonyms  [][]string
	Stopwords []string

	groups    map[string][]int
	stopwords map[string]bool
}

// policyFile is the YAML layout read by LoadPolicy
type policyFile struct {
	Threshold      *float64   `yaml:"threshold"`
	ExtendDefaults *bool      `yaml:"extend_defaults"`
	Synonyms       [][]string `yaml:"synonyms"`
	Stopwords      []string   `yaml:"stopwords"`
}

// DefaultPolicy returns the built-in policy
func DefaultPolicy() *Policy {
	return NewPolicy(DefaultThreshold, defaultSynonyms(), defaultStopwords())
}

// NewPolicy builds a policy, normalizing every synonym term and stopword.
// A threshold outside (0, 1] falls back to DefaultThreshold.
func NewPolicy(threshold float64, synonyms [][]string, stopwords []string) *Policy {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}

	p := &Policy{
		Threshold: threshold,
		groups:    make(map[string][]int),
		stopwords: make(map[string]bool),
	}

	for _, group := range synonyms {
		var terms []string
		for _, term := range group {
			if n := record.Normalize(term); n != "" {
				terms = append(terms, n)
			}
		}
		if len(terms) < 2 {
			continue
		}
		idx := len(p.Synonyms)
		p.Synonyms = append(p.Synonyms, terms)
		for _, term := range terms {
			p.groups[term] = append(p.groups[term], idx)
		}
	}

	for _, w := range stopwords {
		if n := record.Normalize(w); n != "" && !p.stopwords[n] {
			p.stopwords[n] = true
			p.Stopwords = append(p.Stopwords, n)
		}
	}

	return p
}

// LoadPolicy reads a YAML policy file. Unless extend_defaults is false the
// file's synonym groups and stopwords are added to the built-in ones.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy document
func ParsePolicy(data []byte) (*Policy, error) {
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	threshold := DefaultThreshold
	if pf.Threshold != nil {
		if *pf.Threshold <= 0 || *pf.Threshold > 1 {
			return nil, fmt.Errorf("threshold must be in (0, 1], got %v", *pf.Threshold)
		}
		threshold = *pf.Threshold
	}

	synonyms := pf.Synonyms
	stopwords := pf.Stopwords
	if pf.ExtendDefaults == nil || *pf.ExtendDefaults {
		synonyms = append(defaultSynonyms(), synonyms...)
		stopwords = append(defaultStopwords(), stopwords...)
	}

	return NewPolicy(threshold, synonyms, stopwords), nil
}

// Synonymous reports whether two normalized labels share a synonym group
func (p *Policy) Synonymous(a, b string) bool {
	if a == b {
		return false
	}
	for _, ga := range p.groups[a] {
		for _, gb := range p.groups[b] {
			if ga == gb {
				return true
			}
		}
	}
	return false
}

func (p *Policy) isStopword(token string) bool {
	return p.stopwords[token]
}
