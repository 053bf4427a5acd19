// Package scoring turns an account's bio and recent posts into a score, and a score into a verdict.
package scoring

import (
	"github.com/bluesky-social/magpie/keyword"
	"github.com/bluesky-social/magpie/network"
)

// Engine is safe for concurrent use; it holds no state beyond the (immutable) model.
type Engine struct {
	Model *keyword.Model
}

func NewEngine(model *keyword.Model) *Engine {
	if model == nil {
		model = keyword.Empty()
	}
	return &Engine{Model: model}
}

// Score evaluates the bio and then each post. Every matching term counts once per text it appears in, so a term
// in both the bio and a post counts twice. A nil profile gives a zero result with an empty (non-nil) ledger;
// scoring never fails.
func (e *Engine) Score(profile *network.Profile, posts []network.Post) Result {
	res := Result{Ledger: &Ledger{Hits: []Hit{}}}
	if profile == nil {
		return res
	}

	e.scoreText(&res, profile.Bio, SourceBio, 0)
	for i, p := range posts {
		e.scoreText(&res, p.Text, SourcePost, i)
	}
	return res
}

func (e *Engine) scoreText(res *Result, text string, src Source, idx int) {
	if text == "" {
		return
	}
	norm := keyword.Normalize(text)
	for _, cat := range []keyword.Category{keyword.Critical, keyword.Contextual, keyword.Positive} {
		for _, t := range e.Model.Match(cat, norm) {
			w := t.Weight
			if cat == keyword.Positive {
				w = -keyword.PositivePenalty
			}
			res.add(Hit{
				Term:      t.Text,
				Weight:    w,
				Category:  cat,
				Source:    src,
				PostIndex: idx,
			})
		}
	}
}
