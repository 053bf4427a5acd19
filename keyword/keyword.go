// Package keyword holds the weighted term tables used to score accounts.
//
// Matching is plain substring search over lower-cased text: not tokenized, not regex. A term like "war" matches
// inside "software". That is intentional for the kinds of coded terms these tables hold, and is why the tables are
// curated by hand.
package keyword

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Category string

const (
	Critical   Category = "critical"
	Contextual Category = "contextual"
	Positive   Category = "positive"
)

// Fixed score reduction for every positive term match.
const PositivePenalty = 2

type Term struct {
	Text   string
	Weight int
}

// Model is immutable once constructed. The zero value (and [Empty]) matches nothing.
type Model struct {
	critical   []Term
	contextual []Term
	positive   []Term
}

func Empty() *Model {
	return &Model{}
}

// NewModel builds a model from raw tables. Terms are lower-cased and sorted. Empty terms and negative weights
// are dropped; the returned error lists what was dropped, and the model is usable regardless.
func NewModel(critical, contextual map[string]int, positive []string) (*Model, error) {
	var warns []error
	m := &Model{
		critical:   buildTable(Critical, critical, &warns),
		contextual: buildTable(Contextual, contextual, &warns),
	}
	pos := make(map[string]int, len(positive))
	for _, p := range positive {
		pos[p] = PositivePenalty
	}
	m.positive = buildTable(Positive, pos, &warns)
	return m, errors.Join(warns...)
}

func buildTable(cat Category, raw map[string]int, warns *[]error) []Term {
	merged := make(map[string]int, len(raw))
	for text, weight := range raw {
		norm := Normalize(strings.TrimSpace(text))
		if norm == "" {
			*warns = append(*warns, fmt.Errorf("%s: dropping empty term", cat))
			continue
		}
		if weight < 0 {
			*warns = append(*warns, fmt.Errorf("%s: dropping term %q with negative weight %d", cat, text, weight))
			continue
		}
		if prev, ok := merged[norm]; ok {
			*warns = append(*warns, fmt.Errorf("%s: term %q listed more than once (case-insensitive); keeping the larger weight", cat, norm))
			weight = max(prev, weight)
		}
		merged[norm] = weight
	}
	out := make([]Term, 0, len(merged))
	for text, weight := range merged {
		out = append(out, Term{Text: text, Weight: weight})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

// Lower-cases text for matching. Uses full Unicode case mapping rather than strings.ToLower's per-rune mapping.
func Normalize(text string) string {
	// a Caser is stateful, so one per call
	return cases.Lower(language.Und).String(text)
}

// Terms returns the table for a category, in sorted order. The returned slice must not be modified.
func (m *Model) Terms(cat Category) []Term {
	if m == nil {
		return nil
	}
	switch cat {
	case Critical:
		return m.critical
	case Contextual:
		return m.contextual
	case Positive:
		return m.positive
	}
	return nil
}

// Match returns every term of the category that occurs in text, in sorted term order. text must already be
// normalized with [Normalize].
func (m *Model) Match(cat Category, text string) []Term {
	if text == "" {
		return nil
	}
	var hits []Term
	for _, t := range m.Terms(cat) {
		if strings.Contains(text, t.Text) {
			hits = append(hits, t)
		}
	}
	return hits
}

func (m *Model) Size() (critical, contextual, positive int) {
	return len(m.Terms(Critical)), len(m.Terms(Contextual)), len(m.Terms(Positive))
}

func (m *Model) IsEmpty() bool {
	c, x, p := m.Size()
	return c+x+p == 0
}
