// Package setstore persists the classification sets (moderation, suspect, whitelist), the analyzed set, and the
// append-only audit log.
//
// Every mutation is written through to durable storage before the call returns. Two backends are provided: a
// directory of JSON files ([FileStore]), and a SQL database via gorm ([SQLStore]).
package setstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// overridden in tests
var now = func() time.Time {
	return time.Now().UTC()
}

type SetName string

const (
	Moderation SetName = "moderation"
	Suspect    SetName = "suspect"
	Whitelist  SetName = "whitelist"
	// bookkeeping: every account that has been fully analyzed
	Analyzed SetName = "analyzed"
)

var AllSets = []SetName{Moderation, Suspect, Whitelist, Analyzed}

// File stem (and audit action suffix) for each set.
func (s SetName) Stem() string {
	switch s {
	case Moderation:
		return "moderation_list"
	case Suspect:
		return "suspect_list"
	case Whitelist:
		return "whitelist"
	case Analyzed:
		return "analyzed_users"
	}
	return string(s)
}

func (s SetName) Valid() bool {
	switch s {
	case Moderation, Suspect, Whitelist, Analyzed:
		return true
	}
	return false
}

// Classification sets get an audit record when an account is added; the analyzed set does not.
func (s SetName) Audited() bool {
	return s != Analyzed
}

// Audit action recorded when an account is added to the set.
func (s SetName) AddAction() string {
	return "add_to_" + s.Stem()
}

type Outcome int

const (
	Added Outcome = iota + 1
	AlreadyPresent
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case AlreadyPresent:
		return "already_present"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Entry is a set member to add. Only ID is stored in the set itself; Handle and Details go to the audit record.
type Entry struct {
	ID      string
	Handle  string
	Details *Details
}

type SetStore interface {
	// Adds the entry if absent. Check and insert are atomic with respect to other callers. An Added outcome on a
	// classification set also appends an audit record.
	AddIfAbsent(ctx context.Context, set SetName, e Entry) (Outcome, error)
	Contains(ctx context.Context, set SetName, id string) (bool, error)
	// In insertion order.
	Members(ctx context.Context, set SetName) ([]string, error)
	Log(ctx context.Context, entry AuditEntry) error
	// In append order.
	AuditLog(ctx context.Context) ([]AuditEntry, error)
	Close() error
}

// PersistError is returned when a mutation could not be written to durable storage. The in-memory state (if any)
// still reflects the mutation.
type PersistError struct {
	Target string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persisting %s: %s", e.Target, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	// account DID, or the raw identifier when it could not be resolved
	User    string   `json:"user"`
	Handle  string   `json:"handle,omitempty"`
	Details *Details `json:"details,omitempty"`
}

type HitDetail struct {
	Term     string `json:"term"`
	Weight   int    `json:"weight"`
	Category string `json:"category"`
	Source   string `json:"source"`
}

type Details struct {
	// identifier as supplied (seed file, follow edge, list)
	Identifier     string      `json:"identifier,omitempty"`
	Score          *int        `json:"score,omitempty"`
	CriticalHits   int         `json:"critical_hits,omitempty"`
	ContextualHits int         `json:"contextual_hits,omitempty"`
	PositiveHits   int         `json:"positive_hits,omitempty"`
	Hits           []HitDetail `json:"hits,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	Error          string      `json:"error,omitempty"`
	// free-form text; older log files stored details as a bare string ("Score: 7"), which decodes here
	Note string `json:"note,omitempty"`
}

func (d *Details) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = Details{Note: s}
		return nil
	}
	type plain Details
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = Details(p)
	return nil
}
