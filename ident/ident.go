// Package ident parses the account and list references accepted on the command line and in seed files.
//
// Only syntax is checked here; whether an account actually exists is decided by the resolver in package gateway.
package ident

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	didRegex    = regexp.MustCompile(`^did:[a-z]+:[a-zA-Z0-9._:%-]*[a-zA-Z0-9._-]$`)
	handleRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	rkeyRegex   = regexp.MustCompile(`^[a-zA-Z0-9._:~-]{1,512}$`)

	ErrEmpty = errors.New("empty identifier")
)

// A stable account identifier. Always use [ParseDID] on input.
type DID string

func ParseDID(raw string) (DID, error) {
	if raw == "" {
		return "", ErrEmpty
	}
	if len(raw) > 2*1024 {
		return "", fmt.Errorf("DID is too long (2048 chars max)")
	}
	if !didRegex.MatchString(raw) {
		return "", fmt.Errorf("invalid DID syntax: %q", raw)
	}
	return DID(raw), nil
}

func (d DID) String() string {
	return string(d)
}

// A mutable, advisory account name.
type Handle string

func ParseHandle(raw string) (Handle, error) {
	if raw == "" {
		return "", ErrEmpty
	}
	if len(raw) > 253 {
		return "", errors.New("handle is too long (253 chars max)")
	}
	if !handleRegex.MatchString(raw) {
		return "", fmt.Errorf("invalid handle syntax: %q", raw)
	}
	return Handle(raw).Normalize(), nil
}

func (h Handle) Normalize() Handle {
	return Handle(strings.ToLower(string(h)))
}

// The special handle returned by the network when bidirectional verification failed.
func (h Handle) IsInvalid() bool {
	return h.Normalize() == "handle.invalid"
}

func (h Handle) String() string {
	return string(h)
}

// Identifier is either a DID or a handle. Exactly one field is set.
type Identifier struct {
	DID    DID
	Handle Handle
}

// Parses a user-supplied account reference. Surrounding whitespace and a single leading '@' are ignored.
func ParseIdentifier(raw string) (Identifier, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "@")
	if raw == "" {
		return Identifier{}, ErrEmpty
	}
	if strings.HasPrefix(raw, "did:") {
		did, err := ParseDID(raw)
		if err != nil {
			return Identifier{}, err
		}
		return Identifier{DID: did}, nil
	}
	h, err := ParseHandle(raw)
	if err != nil {
		return Identifier{}, err
	}
	return Identifier{Handle: h}, nil
}

func (i Identifier) IsDID() bool {
	return i.DID != ""
}

func (i Identifier) String() string {
	if i.IsDID() {
		return i.DID.String()
	}
	return i.Handle.String()
}

const ListCollection = "app.bsky.graph.list"

// ListRef points at a curated list record. The authority may still need resolving if it is a handle.
type ListRef struct {
	Authority Identifier
	RecordKey string
}

// Accepts either an AT-URI (at://<authority>/app.bsky.graph.list/<rkey>) or a web URL
// (https://bsky.app/profile/<authority>/lists/<rkey>).
func ParseListRef(raw string) (ListRef, error) {
	raw = strings.TrimSpace(raw)
	var authority, collection, rkey string
	switch {
	case strings.HasPrefix(raw, "at://"):
		parts := strings.Split(strings.TrimPrefix(raw, "at://"), "/")
		if len(parts) != 3 {
			return ListRef{}, fmt.Errorf("list AT-URI must have authority, collection and record key: %q", raw)
		}
		authority, collection, rkey = parts[0], parts[1], parts[2]
	case strings.HasPrefix(raw, "https://bsky.app/profile/"):
		parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(raw, "https://bsky.app/profile/"), "/"), "/")
		if len(parts) != 3 || parts[1] != "lists" {
			return ListRef{}, fmt.Errorf("unrecognized list URL: %q", raw)
		}
		authority, collection, rkey = parts[0], ListCollection, parts[2]
	default:
		return ListRef{}, fmt.Errorf("unsupported list reference: %q", raw)
	}
	if collection != ListCollection {
		return ListRef{}, fmt.Errorf("not a list record (collection %s)", collection)
	}
	if !rkeyRegex.MatchString(rkey) || rkey == "." || rkey == ".." {
		return ListRef{}, fmt.Errorf("invalid record key: %q", rkey)
	}
	id, err := ParseIdentifier(authority)
	if err != nil {
		return ListRef{}, fmt.Errorf("list authority: %w", err)
	}
	return ListRef{Authority: id, RecordKey: rkey}, nil
}

// Renders the AT-URI for this list, given the resolved DID of the authority.
func (r ListRef) ATURI(owner DID) string {
	return fmt.Sprintf("at://%s/%s/%s", owner, ListCollection, r.RecordKey)
}

func (r ListRef) String() string {
	return fmt.Sprintf("at://%s/%s/%s", r.Authority, ListCollection, r.RecordKey)
}
