package ratelimit

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"almanac-api/internal/config"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return store
}

func TestFileStore_RoundTrip(t *testing.T) {
	store := newTestFileStore(t)

	if _, ok, err := store.Get("203.0.113.10"); ok || err != nil {
		t.Fatalf("Get on empty store: ok=%v err=%v", ok, err)
	}

	want := Record{Attempts: []int64{1700000000, 1700000030}}
	if err := store.Put("203.0.113.10", want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := store.Get("203.0.113.10")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if len(got.Attempts) != 2 || got.Attempts[0] != 1700000000 || got.Attempts[1] != 1700000030 {
		t.Errorf("Get = %+v, want %+v", got, want)
	}

	if err := store.Delete("203.0.113.10"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get("203.0.113.10"); ok {
		t.Error("record should be gone after Delete")
	}
}

func TestFileStore_HashedFilenames(t *testing.T) {
	store := newTestFileStore(t)

	// Identifiers never appear in the directory, only their hashes. Path
	// separators and oversized identifiers are therefore harmless.
	hostile := "../../etc/passwd"
	if err := store.Put(hostile, Record{Attempts: []int64{1700000000}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, err := os.ReadDir(store.dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if name != hashKey(hostile)+".json" {
			t.Errorf("unexpected file %q in store directory", name)
		}
		if len(name) != 64+len(".json") {
			t.Errorf("filename %q is not a sha256 hex name", name)
		}
	}

	if _, ok, _ := store.Get(hostile); !ok {
		t.Error("record addressable by its raw identifier")
	}
}

func TestFileStore_CorruptRecordTreatedAsAbsent(t *testing.T) {
	store := newTestFileStore(t)

	path := filepath.Join(store.dir, hashKey("203.0.113.10")+".json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, ok, err := store.Get("203.0.113.10"); ok || err != nil {
		t.Errorf("corrupt record: ok=%v err=%v, want absent with nil error", ok, err)
	}

	// The next Update replaces the corrupt record cleanly.
	if err := store.Update("203.0.113.10", func(rec Record) Record {
		return Record{Attempts: append(rec.Attempts, 1700000000)}
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec, ok, err := store.Get("203.0.113.10")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if len(rec.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(rec.Attempts))
	}
}

func TestFileStore_UpdateCreatesLockFile(t *testing.T) {
	store := newTestFileStore(t)

	if err := store.Update("203.0.113.10", func(rec Record) Record {
		return Record{Attempts: append(rec.Attempts, 1700000000)}
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	hash := hashKey("203.0.113.10")
	if _, err := os.Stat(filepath.Join(store.dir, hash+".lock")); err != nil {
		t.Errorf("lock file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.dir, hash+".json")); err != nil {
		t.Errorf("record file missing: %v", err)
	}
}

func TestFileStore_ConcurrentUpdates(t *testing.T) {
	store := newTestFileStore(t)

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			_ = store.Update("203.0.113.10", func(rec Record) Record {
				return Record{Attempts: append(rec.Attempts, n)}
			})
		}(int64(i))
	}
	wg.Wait()

	rec, ok, err := store.Get("203.0.113.10")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if len(rec.Attempts) != writers {
		t.Errorf("recorded %d attempts, want %d (flock should serialize writers)", len(rec.Attempts), writers)
	}
	if store.FallbackWrites() != 0 {
		t.Errorf("FallbackWrites = %d, want 0 within the lock wait bound", store.FallbackWrites())
	}
}

func TestFileStore_SweepStaleByModTime(t *testing.T) {
	store := newTestFileStore(t)

	if err := store.Put("stale-client", Record{Attempts: []int64{1700000000}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put("active-client", Record{Attempts: []int64{time.Now().Unix()}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Backdate the stale record past the cutoff.
	stalePath := filepath.Join(store.dir, hashKey("stale-client")+".json")
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	cutoff := time.Now().Add(-time.Hour)
	removed, err := store.Sweep(cutoff, func(rec Record) Record { return rec })
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}

	if _, ok, _ := store.Get("stale-client"); ok {
		t.Error("stale record should be removed")
	}
	if _, ok, _ := store.Get("active-client"); !ok {
		t.Error("active record must survive")
	}
}

func TestFileStore_SweepPrunedEmptyRecords(t *testing.T) {
	store := newTestFileStore(t)

	if err := store.Put("all-stale", Record{Attempts: []int64{100, 200}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put("still-active", Record{Attempts: []int64{100, time.Now().Unix()}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	threshold := time.Now().Add(-time.Hour).Unix()
	prune := func(rec Record) Record {
		attempts := make([]int64, 0, len(rec.Attempts))
		for _, ts := range rec.Attempts {
			if ts > threshold {
				attempts = append(attempts, ts)
			}
		}
		return Record{Attempts: attempts}
	}

	// Files were just written so the mtime fast path does not apply; removal
	// is driven by the prune result.
	removed, err := store.Sweep(time.Now().Add(-time.Hour), prune)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}

	if _, ok, _ := store.Get("all-stale"); ok {
		t.Error("record with only stale attempts should be removed")
	}
	if _, ok, _ := store.Get("still-active"); !ok {
		t.Error("record with an in-window attempt must survive")
	}
}

func TestFileStore_SweepIgnoresForeignFiles(t *testing.T) {
	store := newTestFileStore(t)

	if err := os.WriteFile(filepath.Join(store.dir, "README.txt"), []byte("hi"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	removed, err := store.Sweep(time.Now(), func(rec Record) Record { return rec })
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 0 {
		t.Errorf("Sweep removed %d, want 0", removed)
	}
	if _, err := os.Stat(filepath.Join(store.dir, "README.txt")); err != nil {
		t.Errorf("foreign file should be untouched: %v", err)
	}
}

func TestLimiterWithFileStore(t *testing.T) {
	store := newTestFileStore(t)
	limiter := NewLimiter(store, config.RateLimitConfig{
		MaxAttempts: 3,
		Window:      time.Minute,
	}, nil)

	for i := 0; i < 3; i++ {
		if err := limiter.RecordFailure("203.0.113.10"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	if !limiter.IsLimited("203.0.113.10") {
		t.Error("should be limited")
	}

	retryAfter := limiter.RetryAfterSeconds("203.0.113.10")
	if retryAfter <= 0 || retryAfter > 60 {
		t.Errorf("RetryAfterSeconds = %d, want within (0, 60]", retryAfter)
	}

	if err := limiter.ClearAttempts("203.0.113.10"); err != nil {
		t.Fatalf("ClearAttempts: %v", err)
	}
	if limiter.IsLimited("203.0.113.10") {
		t.Error("cleared identifier should not be limited")
	}
}
