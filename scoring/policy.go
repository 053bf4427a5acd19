package scoring

import (
	"fmt"
)

type Verdict int

const (
	NoAction Verdict = iota
	Whitelist
	Moderation
	Suspect
)

func (v Verdict) String() string {
	switch v {
	case NoAction:
		return "no_action"
	case Whitelist:
		return "whitelist"
	case Moderation:
		return "moderation"
	case Suspect:
		return "suspect"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Policy maps a score to a verdict. Thresholds are inclusive.
type Policy struct {
	WhitelistMax  int
	ModerationMin int
	SuspectMin    int
	// When positive, moderation additionally requires at least this many critical hits; accounts that reach the
	// moderation score without enough critical hits are classified as suspect instead. Zero disables the gate.
	ModerationMinCriticalHits int
}

func DefaultPolicy() Policy {
	return Policy{
		WhitelistMax:  -4,
		ModerationMin: 10,
		SuspectMin:    5,
	}
}

// Classify checks whitelist first, then moderation, then suspect. A strongly benign score is whitelisted even if
// some of the text matched critical terms.
func (p Policy) Classify(r Result) Verdict {
	switch {
	case r.Score <= p.WhitelistMax:
		return Whitelist
	case r.Score >= p.ModerationMin && r.CriticalHits >= p.ModerationMinCriticalHits:
		return Moderation
	case r.Score >= p.SuspectMin:
		return Suspect
	default:
		return NoAction
	}
}

func (p Policy) Validate() error {
	if p.WhitelistMax >= p.SuspectMin {
		return fmt.Errorf("whitelist threshold (%d) must be below suspect threshold (%d)", p.WhitelistMax, p.SuspectMin)
	}
	if p.SuspectMin > p.ModerationMin {
		return fmt.Errorf("suspect threshold (%d) must not exceed moderation threshold (%d)", p.SuspectMin, p.ModerationMin)
	}
	if p.ModerationMinCriticalHits < 0 {
		return fmt.Errorf("moderation critical-hit gate must not be negative")
	}
	return nil
}
