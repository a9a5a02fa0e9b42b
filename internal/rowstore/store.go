// Package rowstore persists conversation state as named collections of
// key->record maps plus append-only logs, in a single JSON file. All
// mutations run under one mutex, so Update gives callers an atomic
// read-modify-write primitive; exclusivity invariants (one pending
// confirmation per thread, at-most-once event processing) are enforced
// here rather than by callers racing over read-then-write.
package rowstore

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	kerrors "github.com/harunnryd/kakari/internal/errors"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

// Record is one row: field name -> value.
type Record map[string]string

func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type state struct {
	Collections map[string]map[string]Record `json:"collections"`
	Logs        map[string][]Record          `json:"logs"`
	Seen        map[string]int64             `json:"seen"` // event key -> expiry (unix)
}

type Store struct {
	path  string
	lock  *flock.Flock
	state state
	mu    sync.Mutex
}

// New opens (or creates) the store rooted at dir. A flock on the
// directory guards against a second daemon instance sharing the file.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kerrors.Wrap(err, "create store dir")
	}

	fl := flock.New(filepath.Join(dir, "store.lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, kerrors.Wrap(err, "acquire store lock")
	}
	if !locked {
		return nil, kerrors.Conflict("store is locked by another instance")
	}

	s := &Store{
		path: filepath.Join(dir, "store.json"),
		lock: fl,
		state: state{
			Collections: make(map[string]map[string]Record),
			Logs:        make(map[string][]Record),
			Seen:        make(map[string]int64),
		},
	}
	if err := s.load(); err != nil {
		fl.Unlock()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.save()
	}
	if err != nil {
		return kerrors.Wrap(err, "read store file")
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return kerrors.Wrap(err, "parse store file")
	}
	if s.state.Collections == nil {
		s.state.Collections = make(map[string]map[string]Record)
	}
	if s.state.Logs == nil {
		s.state.Logs = make(map[string][]Record)
	}
	if s.state.Seen == nil {
		s.state.Seen = make(map[string]int64)
	}
	return nil
}

// save is called with s.mu held (or before the store is shared).
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(data))
}

func (s *Store) Close() error {
	return s.lock.Unlock()
}

// Get returns a copy of the record stored under key, if any.
func (s *Store) Get(collection, key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.state.Collections[collection]
	if !ok {
		return nil, false
	}
	rec, ok := col[key]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Put overwrites the record stored under key. Last write wins.
func (s *Store) Put(collection, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.state.Collections[collection]
	if !ok {
		col = make(map[string]Record)
		s.state.Collections[collection] = col
	}
	col[key] = rec.Clone()
	return s.save()
}

// Update applies fn to the record under key as one atomic step. fn
// receives a copy of the existing record (nil when absent) and returns
// the record to store; returning an error aborts without writing. This
// is the linearization point for check-then-act invariants.
func (s *Store) Update(collection, key string, fn func(existing Record) (Record, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.state.Collections[collection]
	if !ok {
		col = make(map[string]Record)
		s.state.Collections[collection] = col
	}

	updated, err := fn(col[key].Clone())
	if err != nil {
		return err
	}
	col[key] = updated.Clone()
	return s.save()
}

// ListAll returns copies of every record in the collection.
func (s *Store) ListAll(collection string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.state.Collections[collection]
	out := make([]Record, 0, len(col))
	for _, rec := range col {
		out = append(out, rec.Clone())
	}
	return out
}

// AppendLog appends a record to an append-only log collection, stamping
// it with a ULID and timestamp. Insertion order is preserved.
func (s *Store) AppendLog(collection string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := rec.Clone()
	if entry == nil {
		entry = Record{}
	}
	entry["id"] = ulid.Make().String()
	entry["logged_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	s.state.Logs[collection] = append(s.state.Logs[collection], entry)
	return s.save()
}

// QueryLog returns log entries whose field equals value, in insertion order.
func (s *Store) QueryLog(collection, field, value string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, entry := range s.state.Logs[collection] {
		if entry[field] == value {
			out = append(out, entry.Clone())
		}
	}
	return out
}

// CheckAndMark reports whether key was already seen and, if not, marks
// it with the given TTL. Check and mark are one atomic step so webhook
// retries racing each other cannot both pass.
func (s *Store) CheckAndMark(key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	if expiry, exists := s.state.Seen[key]; exists && expiry > now {
		return true, nil
	}

	s.state.Seen[key] = time.Now().Add(ttl).Unix()

	// Prune expired keys while we hold the lock.
	for k, expiry := range s.state.Seen {
		if expiry <= now {
			delete(s.state.Seen, k)
		}
	}
	return false, s.save()
}
