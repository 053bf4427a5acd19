package crawl

import (
	"fmt"

	"github.com/bluesky-social/magpie/network"
	"github.com/bluesky-social/magpie/scoring"
)

// State of a single account as it moves through analysis. Analysis ends in one of the terminal states:
// ResolveFailed, AlreadyAnalyzed, Whitelisted, ProfileMissing or Recorded.
type State int

const (
	Unseen State = iota
	Resolving
	ResolveFailed
	AlreadyAnalyzed
	Whitelisted
	ProfileMissing
	Scored
	Classified
	Recorded
)

func (s State) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case Resolving:
		return "resolving"
	case ResolveFailed:
		return "resolve_failed"
	case AlreadyAnalyzed:
		return "already_analyzed"
	case Whitelisted:
		return "whitelisted"
	case ProfileMissing:
		return "profile_missing"
	case Scored:
		return "scored"
	case Classified:
		return "classified"
	case Recorded:
		return "recorded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Outcome struct {
	// as supplied: seed file entry, follow edge DID, or list member DID
	Identifier string
	State      State
	// only meaningful once State has reached Classified
	Verdict scoring.Verdict
	// DID is empty if resolution failed
	Account network.Account
	Result  *scoring.Result
	// the failure that ended analysis early, if any
	Err error
}

// Summary counts outcomes over a whole crawl.
type Summary struct {
	Visited         int
	AlreadyAnalyzed int
	Whitelisted     int
	Failed          int
	Verdicts        map[scoring.Verdict]int
}

func (s *Summary) add(out Outcome) {
	s.Visited++
	switch out.State {
	case AlreadyAnalyzed:
		s.AlreadyAnalyzed++
	case Whitelisted:
		s.Whitelisted++
	case ResolveFailed, ProfileMissing:
		s.Failed++
	case Recorded:
		if s.Verdicts == nil {
			s.Verdicts = make(map[scoring.Verdict]int)
		}
		s.Verdicts[out.Verdict]++
	}
}
