package setstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func intPtr(v int) *int { return &v }

// behavior shared by every backend
func testSetStoreBasics(t *testing.T, s SetStore) {
	assert := assert.New(t)
	ctx := context.Background()

	e := Entry{ID: "did:plc:aaa", Handle: "aaa.example.com", Details: &Details{Score: intPtr(12), CriticalHits: 2}}
	out, err := s.AddIfAbsent(ctx, Moderation, e)
	assert.NoError(err)
	assert.Equal(Added, out)

	out, err = s.AddIfAbsent(ctx, Moderation, e)
	assert.NoError(err)
	assert.Equal(AlreadyPresent, out)

	ok, err := s.Contains(ctx, Moderation, "did:plc:aaa")
	assert.NoError(err)
	assert.True(ok)
	ok, err = s.Contains(ctx, Suspect, "did:plc:aaa")
	assert.NoError(err)
	assert.False(ok)

	members, err := s.Members(ctx, Moderation)
	assert.NoError(err)
	assert.Equal([]string{"did:plc:aaa"}, members)

	// analyzed set is not audited
	out, err = s.AddIfAbsent(ctx, Analyzed, Entry{ID: "did:plc:aaa"})
	assert.NoError(err)
	assert.Equal(Added, out)

	assert.NoError(s.Log(ctx, AuditEntry{Action: "no_action", User: "did:plc:bbb", Details: &Details{Score: intPtr(0)}}))

	entries, err := s.AuditLog(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal("add_to_moderation_list", entries[0].Action)
	assert.Equal("did:plc:aaa", entries[0].User)
	assert.Equal("aaa.example.com", entries[0].Handle)
	require.NotNil(t, entries[0].Details)
	assert.Equal(12, *entries[0].Details.Score)
	assert.False(entries[0].Timestamp.IsZero())
	assert.Equal("no_action", entries[1].Action)

	_, err = s.AddIfAbsent(ctx, SetName("bogus"), Entry{ID: "did:plc:aaa"})
	assert.Error(err)
	_, err = s.AddIfAbsent(ctx, Suspect, Entry{})
	assert.Error(err)

	// insertion order
	for _, id := range []string{"did:plc:z", "did:plc:a", "did:plc:m"} {
		_, err := s.AddIfAbsent(ctx, Suspect, Entry{ID: id})
		require.NoError(t, err)
	}
	members, err = s.Members(ctx, Suspect)
	assert.NoError(err)
	assert.Equal([]string{"did:plc:z", "did:plc:a", "did:plc:m"}, members)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenFileStore(dir, nil)
	require.NoError(t, err)
	testSetStoreBasics(t, s)
}

func TestFileStoreCreatesMissingFiles(t *testing.T) {
	assert := assert.New(t)
	dir := filepath.Join(t.TempDir(), "nested", "data")

	_, err := OpenFileStore(dir, nil)
	require.NoError(t, err)
	for _, name := range []string{"moderation_list.json", "suspect_list.json", "whitelist.json", "analyzed_users.json", "log.json"} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		assert.NoError(err, name)
		assert.JSONEq(`[]`, string(raw), name)
	}
}

func TestFileStorePersists(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenFileStore(dir, nil)
	require.NoError(t, err)
	e := Entry{ID: "did:plc:ccc", Details: &Details{Score: intPtr(6)}}
	_, err = s.AddIfAbsent(ctx, Suspect, e)
	require.NoError(t, err)
	_, err = s.AddIfAbsent(ctx, Suspect, e)
	require.NoError(t, err)

	// one persisted entry, one audit record
	var ids []string
	raw, err := os.ReadFile(filepath.Join(dir, "suspect_list.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &ids))
	assert.Equal([]string{"did:plc:ccc"}, ids)

	var logs []map[string]any
	raw, err = os.ReadFile(filepath.Join(dir, "log.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &logs))
	assert.Len(logs, 1)
	assert.Equal("add_to_suspect_list", logs[0]["action"])

	// reopen: state survives, and dedup still applies
	s2, err := OpenFileStore(dir, nil)
	require.NoError(t, err)
	out, err := s2.AddIfAbsent(ctx, Suspect, e)
	assert.NoError(err)
	assert.Equal(AlreadyPresent, out)
	entries, err := s2.AuditLog(ctx)
	assert.NoError(err)
	assert.Len(entries, 1)

	// no temp files left behind
	tmps, err := filepath.Glob(filepath.Join(dir, ".*.tmp"))
	assert.NoError(err)
	assert.Empty(tmps)
}

func TestFileStoreMalformedFileFailsOpen(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "whitelist.json"), []byte(`["did:plc:aaa", `), 0o644))
	_, err := OpenFileStore(dir, nil)
	assert.Error(err)

	// left as-is for a human to look at
	raw, err := os.ReadFile(filepath.Join(dir, "whitelist.json"))
	assert.NoError(err)
	assert.Equal(`["did:plc:aaa", `, string(raw))
}

func TestFileStorePersistFailureKeepsMemoryState(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "data")
	s, err := OpenFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	out, err := s.AddIfAbsent(ctx, Moderation, Entry{ID: "did:plc:aaa"})
	assert.Equal(Added, out)
	var pe *PersistError
	assert.True(errors.As(err, &pe))
	assert.Equal(filepath.Join(dir, "moderation_list.json"), pe.Target)

	in, err := s.Contains(ctx, Moderation, "did:plc:aaa")
	assert.NoError(err)
	assert.True(in)

	out, err = s.AddIfAbsent(ctx, Moderation, Entry{ID: "did:plc:aaa"})
	assert.NoError(err)
	assert.Equal(AlreadyPresent, out)

	err = s.Log(ctx, AuditEntry{Action: "no_action", User: "did:plc:bbb"})
	assert.True(errors.As(err, &pe))
	_, err = os.Stat(dir)
	assert.True(os.IsNotExist(err))
}

func TestFileStoreLegacyLog(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	legacy := `[
    {
        "timestamp": "2024-11-20T18:03:12.123456Z",
        "action": "add_to_suspect_list",
        "user": "did:plc:old",
        "handle": "old.bsky.social",
        "details": "Score: 7"
    }
]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "log.json"), []byte(legacy), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "analyzed_users.json"), []byte(`["did:plc:old", "did:plc:old"]`), 0o644))

	s, err := OpenFileStore(dir, nil)
	require.NoError(t, err)

	members, err := s.Members(ctx, Analyzed)
	assert.NoError(err)
	assert.Equal([]string{"did:plc:old"}, members)

	require.NoError(t, s.Log(ctx, AuditEntry{Action: "no_action", User: "did:plc:new"}))
	entries, err := s.AuditLog(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal("Score: 7", entries[0].Details.Note)
	assert.Equal(2024, entries[0].Timestamp.Year())
	assert.Equal("did:plc:new", entries[1].User)
}

func TestFileStoreConcurrentAdd(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	s, err := OpenFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan Outcome, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.AddIfAbsent(ctx, Moderation, Entry{ID: "did:plc:race"})
			assert.NoError(err)
			results <- out
		}()
	}
	wg.Wait()
	close(results)

	added := 0
	for out := range results {
		if out == Added {
			added++
		}
	}
	assert.Equal(1, added)
	entries, err := s.AuditLog(ctx)
	assert.NoError(err)
	assert.Len(entries, 1)
}

func TestFileStoreTimestamps(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := now
	now = func() time.Time { return fixed }
	defer func() { now = prev }()

	s, err := OpenFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Log(ctx, AuditEntry{Action: "resolve_failed", User: "nobody.example"}))
	entries, err := s.AuditLog(ctx)
	require.NoError(t, err)
	assert.True(fixed.Equal(entries[0].Timestamp))
}

func TestSQLStore(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "magpie.sqlite")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	s, err := NewSQLStore(db, nil)
	require.NoError(t, err)
	defer s.Close()

	testSetStoreBasics(t, s)
}

func TestDetailsLegacyString(t *testing.T) {
	assert := assert.New(t)

	var d Details
	assert.NoError(json.Unmarshal([]byte(`"Score: 3"`), &d))
	assert.Equal("Score: 3", d.Note)

	assert.NoError(json.Unmarshal([]byte(`{"score": 3, "reason": "no_action"}`), &d))
	assert.Equal(3, *d.Score)
	assert.Equal("no_action", d.Reason)
	assert.Empty(d.Note)

	assert.Error(json.Unmarshal([]byte(`[1, 2]`), &d))
}
