package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/bluesky-social/magpie/ident"
	"github.com/bluesky-social/magpie/xrpc"
)

// MemNetwork is an in-memory [Network], for tests and offline runs. Unknown accounts behave like the real API
// does for them: an InvalidRequest (HTTP 400) error.
type MemNetwork struct {
	lk       sync.Mutex
	handles  map[ident.Handle]ident.DID
	profiles map[ident.DID]*Profile
	posts    map[ident.DID][]Post
	follows  map[ident.DID][]Account
	lists    map[string][]Account
	// errors to return, keyed by "<method>/<key>"; consumed in order, the last one sticks
	failures map[string][]error
	calls    map[string]int
}

var _ Network = (*MemNetwork)(nil)

func NewMemNetwork() *MemNetwork {
	return &MemNetwork{
		handles:  make(map[ident.Handle]ident.DID),
		profiles: make(map[ident.DID]*Profile),
		posts:    make(map[ident.DID][]Post),
		follows:  make(map[ident.DID][]Account),
		lists:    make(map[string][]Account),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// Registers an account with a bio.
func (m *MemNetwork) AddAccount(did ident.DID, handle ident.Handle, bio string) Account {
	m.lk.Lock()
	defer m.lk.Unlock()
	acct := Account{DID: did, Handle: handle}
	if handle != "" {
		m.handles[handle] = did
	}
	m.profiles[did] = &Profile{Account: acct, Bio: bio}
	return acct
}

func (m *MemNetwork) AddPosts(did ident.DID, texts ...string) {
	m.lk.Lock()
	defer m.lk.Unlock()
	acct := Account{DID: did}
	if p, ok := m.profiles[did]; ok {
		acct = p.Account
	}
	for _, txt := range texts {
		m.posts[did] = append(m.posts[did], Post{
			Account: acct,
			URI:     fmt.Sprintf("at://%s/app.bsky.feed.post/%d", did, len(m.posts[did])),
			Text:    txt,
		})
	}
}

func (m *MemNetwork) AddFollows(did ident.DID, follows ...ident.DID) {
	m.lk.Lock()
	defer m.lk.Unlock()
	for _, f := range follows {
		acct := Account{DID: f}
		if p, ok := m.profiles[f]; ok {
			acct = p.Account
		}
		m.follows[did] = append(m.follows[did], acct)
	}
}

func (m *MemNetwork) SetList(uri string, members ...ident.DID) {
	m.lk.Lock()
	defer m.lk.Unlock()
	accts := make([]Account, 0, len(members))
	for _, d := range members {
		accts = append(accts, Account{DID: d})
	}
	m.lists[uri] = accts
}

// Fail makes the given method fail for key (a DID, handle, or list URI). Multiple errors are returned on
// successive calls; the final error repeats forever.
func (m *MemNetwork) Fail(method, key string, errs ...error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.failures[method+"/"+key] = errs
}

// Number of calls made to method for key.
func (m *MemNetwork) Calls(method, key string) int {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.calls[method+"/"+key]
}

// Total number of calls made for key, across all methods.
func (m *MemNetwork) TotalCalls(key string) int {
	m.lk.Lock()
	defer m.lk.Unlock()
	total := 0
	for _, method := range []string{"ResolveHandle", "GetProfile", "GetRecentPosts", "GetFollows", "GetCuratedList"} {
		total += m.calls[method+"/"+key]
	}
	return total
}

// must hold lock
func (m *MemNetwork) record(method, key string) error {
	k := method + "/" + key
	m.calls[k]++
	errs := m.failures[k]
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		m.failures[k] = errs[1:]
		return errs[0]
	}
}

func notFound(msg string) error {
	return &xrpc.Error{StatusCode: 400, Wrapped: &xrpc.XRPCError{ErrStr: "InvalidRequest", Message: msg}}
}

func (m *MemNetwork) ResolveHandle(ctx context.Context, handle ident.Handle) (Account, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if err := m.record("ResolveHandle", handle.String()); err != nil {
		return Account{}, err
	}
	did, ok := m.handles[handle]
	if !ok {
		return Account{}, notFound("Unable to resolve handle")
	}
	return Account{DID: did, Handle: handle}, nil
}

func (m *MemNetwork) GetProfile(ctx context.Context, did ident.DID) (*Profile, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if err := m.record("GetProfile", did.String()); err != nil {
		return nil, err
	}
	p, ok := m.profiles[did]
	if !ok {
		return nil, notFound("Profile not found")
	}
	cp := *p
	return &cp, nil
}

func (m *MemNetwork) GetRecentPosts(ctx context.Context, did ident.DID) ([]Post, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if err := m.record("GetRecentPosts", did.String()); err != nil {
		return nil, err
	}
	return append([]Post(nil), m.posts[did]...), nil
}

func (m *MemNetwork) GetFollows(ctx context.Context, did ident.DID) ([]Account, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if err := m.record("GetFollows", did.String()); err != nil {
		return nil, err
	}
	return append([]Account(nil), m.follows[did]...), nil
}

func (m *MemNetwork) GetCuratedList(ctx context.Context, listURI string) ([]Account, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if err := m.record("GetCuratedList", listURI); err != nil {
		return nil, err
	}
	l, ok := m.lists[listURI]
	if !ok {
		return nil, notFound("List not found")
	}
	return append([]Account(nil), l...), nil
}
