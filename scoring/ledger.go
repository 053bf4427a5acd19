package scoring

import (
	"github.com/bluesky-social/magpie/keyword"
)

type Source string

const (
	SourceBio  Source = "bio"
	SourcePost Source = "post"
)

// Hit is a single keyword match. Weight is the signed contribution to the score: positive terms carry a negative
// weight.
type Hit struct {
	Term     string           `json:"term"`
	Weight   int              `json:"weight"`
	Category keyword.Category `json:"category"`
	Source   Source           `json:"source"`
	// index into the scored posts; only meaningful when Source is SourcePost
	PostIndex int `json:"post_index,omitempty"`
}

// Ledger records every match that contributed to a score, in evaluation order: bio first, then posts in the
// order given, and within each text critical, contextual, then positive terms, each in sorted term order.
type Ledger struct {
	Hits []Hit `json:"hits"`
}

func (l *Ledger) Empty() bool {
	return l == nil || len(l.Hits) == 0
}

func (l *Ledger) BySource(src Source) []Hit {
	if l == nil {
		return nil
	}
	var out []Hit
	for _, h := range l.Hits {
		if h.Source == src {
			out = append(out, h)
		}
	}
	return out
}

func (l *Ledger) ByCategory(cat keyword.Category) []Hit {
	if l == nil {
		return nil
	}
	var out []Hit
	for _, h := range l.Hits {
		if h.Category == cat {
			out = append(out, h)
		}
	}
	return out
}

type Result struct {
	Score          int
	CriticalHits   int
	ContextualHits int
	PositiveHits   int
	// never nil on a Result returned by [Engine.Score]
	Ledger *Ledger
}

func (r *Result) add(h Hit) {
	r.Score += h.Weight
	switch h.Category {
	case keyword.Critical:
		r.CriticalHits++
	case keyword.Contextual:
		r.ContextualHits++
	case keyword.Positive:
		r.PositiveHits++
	}
	r.Ledger.Hits = append(r.Ledger.Hits, h)
}
