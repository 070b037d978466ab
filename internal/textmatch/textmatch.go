// Package textmatch finds many literal terms in a text in one pass.
//
// An Aho-Corasick automaton over all terms selects the candidate terms
// present in the content; exact occurrence counts are then taken only for
// those candidates.
package textmatch

import (
	"bytes"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Matcher searches content for a fixed set of terms. It holds no mutable
// state after construction and is safe for concurrent use.
type Matcher struct {
	terms     []string
	termBytes [][]byte
	fold      bool
	aho       *ahocorasick.Matcher
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithCaseFold makes matching ASCII case-insensitive.
func WithCaseFold() Option {
	return func(m *Matcher) {
		m.fold = true
	}
}

// New builds a Matcher. Empty and repeated terms are dropped; the first
// occurrence of a term fixes its position in results.
func New(terms []string, opts ...Option) *Matcher {
	m := &Matcher{}
	for _, opt := range opts {
		opt(m)
	}

	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if term == "" {
			continue
		}
		key := term
		if m.fold {
			key = strings.ToLower(term)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		m.terms = append(m.terms, term)
		m.termBytes = append(m.termBytes, []byte(key))
	}

	if len(m.terms) > 0 {
		dict := make([]string, len(m.termBytes))
		for i, b := range m.termBytes {
			dict[i] = string(b)
		}
		m.aho = ahocorasick.NewStringMatcher(dict)
	}
	return m
}

// Len returns the number of distinct terms.
func (m *Matcher) Len() int {
	return len(m.terms)
}

func (m *Matcher) prepare(content []byte) []byte {
	if m.fold {
		return bytes.ToLower(content)
	}
	return content
}

func (m *Matcher) candidates(content []byte) []bool {
	if m.aho == nil || len(content) == 0 {
		return nil
	}
	hits := m.aho.MatchThreadSafe(content)
	if len(hits) == 0 {
		return nil
	}
	found := make([]bool, len(m.terms))
	for _, idx := range hits {
		if idx >= 0 && idx < len(found) {
			found[idx] = true
		}
	}
	return found
}

// Find returns the terms that occur in content, in term order.
func (m *Matcher) Find(content []byte) []string {
	found := m.candidates(m.prepare(content))
	if found == nil {
		return nil
	}
	var out []string
	for i, ok := range found {
		if ok {
			out = append(out, m.terms[i])
		}
	}
	return out
}

// FindString is Find for string content.
func (m *Matcher) FindString(content string) []string {
	return m.Find([]byte(content))
}

// Count returns the number of non-overlapping occurrences of every term
// that occurs in content. Terms that do not occur are absent from the map.
func (m *Matcher) Count(content []byte) map[string]int {
	content = m.prepare(content)
	found := m.candidates(content)
	if found == nil {
		return nil
	}
	counts := make(map[string]int, 4)
	for i, ok := range found {
		if !ok {
			continue
		}
		if n := bytes.Count(content, m.termBytes[i]); n > 0 {
			counts[m.terms[i]] = n
		}
	}
	return counts
}
