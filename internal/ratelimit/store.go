package ratelimit

import (
	"sync"
	"time"
)

// Record is the attempt history for one identifier: UNIX timestamps of
// failed logins, unordered. No record is equivalent to zero attempts.
type Record struct {
	Attempts []int64 `json:"attempts"`
}

// Store is the key-value backend for attempt records. Keys are opaque client
// identifiers; backends are responsible for turning them into safe storage
// addresses. Update is the only operation with an exclusivity guarantee: the
// advisory-lock-per-key discipline is a capability of the backend, not of
// each call site, so the limiter's algorithm survives a backend swap.
type Store interface {
	// Get returns a snapshot of the record. Lock-free: the snapshot may
	// trail a concurrent Update by one write.
	Get(key string) (Record, bool, error)

	// Put replaces the record.
	Put(key string, rec Record) error

	// Delete removes the record entirely.
	Delete(key string) error

	// Update applies fn under a per-key exclusive lock. Backends that fail
	// to acquire the lock degrade to a best-effort non-atomic write rather
	// than blocking the caller.
	Update(key string, fn func(Record) Record) error

	// Sweep removes records whose newest activity precedes cutoff (fast
	// path via the backend's modification metadata) and records that prune
	// leaves with no attempts. Returns the number of records removed.
	Sweep(cutoff time.Time, prune func(Record) Record) (int, error)
}

// MemoryStore is a mutex-guarded in-process backend. It backs tests and
// single-process deployments; multi-process deployments need FileStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	rec      Record
	modified time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[key]
	if !ok {
		return Record{}, false, nil
	}
	attempts := make([]int64, len(entry.rec.Attempts))
	copy(attempts, entry.rec.Attempts)
	return Record{Attempts: attempts}, true, nil
}

func (s *MemoryStore) Put(key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = memoryEntry{rec: rec, modified: s.now()}
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

func (s *MemoryStore) Update(key string, fn func(Record) Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.records[key]
	s.records[key] = memoryEntry{rec: fn(entry.rec), modified: s.now()}
	return nil
}

func (s *MemoryStore) Sweep(cutoff time.Time, prune func(Record) Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.records {
		if entry.modified.Before(cutoff) {
			delete(s.records, key)
			removed++
			continue
		}
		if pruned := prune(entry.rec); len(pruned.Attempts) == 0 {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}
