package setstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps each set as a JSON array of ids in `<dir>/<stem>.json`, and the audit log as a JSON array in
// `<dir>/log.json`. The whole file is rewritten on every mutation (write to a temp file, fsync, rename), so a crash
// leaves either the old or the new contents, never a partial file.
type FileStore struct {
	Dir    string
	logger *slog.Logger

	sets map[SetName]*fileSet

	logLk   sync.Mutex
	logPath string
	// kept raw so that entries in older formats are written back untouched
	logEntries []json.RawMessage
}

type fileSet struct {
	lk    sync.Mutex
	path  string
	ids   []string
	index map[string]bool
}

var _ SetStore = (*FileStore)(nil)

const logFileName = "log.json"

// OpenFileStore loads all sets and the audit log from dir, creating the directory and any missing files. A file
// that exists but does not parse is an error: it is never silently replaced.
func OpenFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &FileStore{
		Dir:     dir,
		logger:  logger.With("store", "file", "dir", dir),
		sets:    make(map[SetName]*fileSet, len(AllSets)),
		logPath: filepath.Join(dir, logFileName),
	}

	for _, name := range AllSets {
		fs := &fileSet{path: filepath.Join(dir, name.Stem()+".json")}
		found, err := loadJSONFile(fs.path, &fs.ids)
		if err != nil {
			return nil, err
		}
		fs.index = make(map[string]bool, len(fs.ids))
		deduped := fs.ids[:0]
		for _, id := range fs.ids {
			if fs.index[id] {
				continue
			}
			fs.index[id] = true
			deduped = append(deduped, id)
		}
		fs.ids = deduped
		if !found {
			if err := writeJSONAtomic(fs.path, []string{}); err != nil {
				return nil, &PersistError{Target: fs.path, Err: err}
			}
			s.logger.Info("initialized empty set file", "set", name, "path", fs.path)
		}
		s.sets[name] = fs
	}

	found, err := loadJSONFile(s.logPath, &s.logEntries)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := writeJSONAtomic(s.logPath, []json.RawMessage{}); err != nil {
			return nil, &PersistError{Target: s.logPath, Err: err}
		}
	}
	return s, nil
}

// Returns false (and no error) if the file does not exist.
func loadJSONFile(path string, out any) (bool, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("parsing %s (refusing to overwrite): %w", path, err)
	}
	return true, nil
}

func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (s *FileStore) set(name SetName) (*fileSet, error) {
	fs, ok := s.sets[name]
	if !ok {
		return nil, fmt.Errorf("unknown set: %q", name)
	}
	return fs, nil
}

func (s *FileStore) AddIfAbsent(ctx context.Context, name SetName, e Entry) (Outcome, error) {
	fs, err := s.set(name)
	if err != nil {
		return 0, err
	}
	if e.ID == "" {
		return 0, fmt.Errorf("empty id for set %s", name)
	}

	fs.lk.Lock()
	if fs.index[e.ID] {
		fs.lk.Unlock()
		return AlreadyPresent, nil
	}
	fs.index[e.ID] = true
	fs.ids = append(fs.ids, e.ID)
	var errs []error
	if err := writeJSONAtomic(fs.path, fs.ids); err != nil {
		errs = append(errs, &PersistError{Target: fs.path, Err: err})
	}
	fs.lk.Unlock()

	if name.Audited() {
		if err := s.Log(ctx, AuditEntry{Action: name.AddAction(), User: e.ID, Handle: e.Handle, Details: e.Details}); err != nil {
			errs = append(errs, err)
		}
	}
	return Added, errors.Join(errs...)
}

func (s *FileStore) Contains(ctx context.Context, name SetName, id string) (bool, error) {
	fs, err := s.set(name)
	if err != nil {
		return false, err
	}
	fs.lk.Lock()
	defer fs.lk.Unlock()
	return fs.index[id], nil
}

func (s *FileStore) Members(ctx context.Context, name SetName) ([]string, error) {
	fs, err := s.set(name)
	if err != nil {
		return nil, err
	}
	fs.lk.Lock()
	defer fs.lk.Unlock()
	return append([]string(nil), fs.ids...), nil
}

func (s *FileStore) Log(ctx context.Context, entry AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now()
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	s.logLk.Lock()
	defer s.logLk.Unlock()
	s.logEntries = append(s.logEntries, b)
	if err := writeJSONAtomic(s.logPath, s.logEntries); err != nil {
		return &PersistError{Target: s.logPath, Err: err}
	}
	return nil
}

func (s *FileStore) AuditLog(ctx context.Context) ([]AuditEntry, error) {
	s.logLk.Lock()
	defer s.logLk.Unlock()
	out := make([]AuditEntry, 0, len(s.logEntries))
	for i, raw := range s.logEntries {
		var ae AuditEntry
		if err := json.Unmarshal(raw, &ae); err != nil {
			return nil, fmt.Errorf("audit log entry %d: %w", i, err)
		}
		out = append(out, ae)
	}
	return out, nil
}

// Nothing is buffered; Close exists to satisfy [SetStore].
func (s *FileStore) Close() error {
	return nil
}
