package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// FileStore persists one record per identifier on the filesystem, the only
// state shared between worker processes. Identifiers are addressed by their
// SHA-256 hash, never the raw value: hashes are safe filenames and bound the
// path length for arbitrary identifiers (IPv6, forwarded tokens).
//
// Each record <hash>.json has an adjacent <hash>.lock file providing the
// per-identifier advisory lock, so unrelated identifiers never contend.
type FileStore struct {
	dir      string
	logger   *slog.Logger
	lockWait time.Duration

	// fallbackWrites counts Updates that could not take the lock and
	// degraded to the non-atomic path. Exposed so the weaker guarantee is
	// observable instead of silent.
	fallbackWrites atomic.Int64
}

// defaultLockWait bounds how long Update spins on a contended lock before
// degrading. The critical section is a single small read-modify-write, so
// in practice the lock is immediately satisfiable.
const defaultLockWait = 250 * time.Millisecond

func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create rate limit directory: %w", err)
	}
	return &FileStore{
		dir:      dir,
		logger:   logger,
		lockWait: defaultLockWait,
	}, nil
}

// FallbackWrites returns how many updates ran without the advisory lock.
func (s *FileStore) FallbackWrites() int64 {
	return s.fallbackWrites.Load()
}

func (s *FileStore) Get(key string) (Record, bool, error) {
	data, err := os.ReadFile(s.recordPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt record counts as absent; the next write replaces it.
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *FileStore) Put(key string, rec Record) error {
	return s.writeRecord(s.recordPath(key), rec)
}

func (s *FileStore) Delete(key string) error {
	hash := hashKey(key)
	if err := os.Remove(s.jsonPath(hash)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	_ = os.Remove(s.lockPath(hash))
	return nil
}

// Update applies fn under an exclusive flock on the identifier's lock file.
// Lock acquisition is non-blocking with bounded retries; if the lock cannot
// be taken (contention past the bound, or a platform without flock
// semantics) the write proceeds without it. That fallback can lose a
// concurrent increment but never decreases the recorded count.
func (s *FileStore) Update(key string, fn func(Record) Record) error {
	hash := hashKey(key)

	lockFile, err := os.OpenFile(s.lockPath(hash), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		s.noteFallback(key, err)
	} else {
		defer lockFile.Close()
		if err := s.flockBounded(lockFile); err != nil {
			s.noteFallback(key, err)
		} else {
			defer func() {
				_ = unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
			}()
		}
	}

	rec, _, err := s.Get(key)
	if err != nil {
		return err
	}
	return s.writeRecord(s.jsonPath(hash), fn(rec))
}

func (s *FileStore) Sweep(cutoff time.Time, prune func(Record) Record) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		hash := strings.TrimSuffix(name, ".json")
		path := filepath.Join(s.dir, name)

		// Fast path: the file was last written before the cutoff, so its
		// newest attempt is necessarily stale.
		if info, err := entry.Info(); err == nil && info.ModTime().Before(cutoff) {
			removed += s.removePair(hash)
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			removed += s.removePair(hash)
			continue
		}
		if pruned := prune(rec); len(pruned.Attempts) == 0 {
			removed += s.removePair(hash)
		}
	}
	return removed, nil
}

// flockBounded takes LOCK_EX without blocking, retrying until lockWait
// elapses.
func (s *FileStore) flockBounded(lockFile *os.File) error {
	deadline := time.Now().Add(s.lockWait)
	for {
		err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			return err
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *FileStore) noteFallback(key string, err error) {
	s.fallbackWrites.Add(1)
	if s.logger != nil {
		s.logger.Warn("attempt store lock unavailable, writing without lock",
			slog.String("key_hash", hashKey(key)),
			slog.Any("error", err))
	}
}

func (s *FileStore) writeRecord(path string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	// Write-then-rename keeps readers from ever observing a torn record.
	tmp, err := os.CreateTemp(s.dir, ".attempt-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func (s *FileStore) removePair(hash string) int {
	if err := os.Remove(s.jsonPath(hash)); err != nil {
		return 0
	}
	_ = os.Remove(s.lockPath(hash))
	return 1
}

func (s *FileStore) recordPath(key string) string {
	return s.jsonPath(hashKey(key))
}

func (s *FileStore) jsonPath(hash string) string {
	return filepath.Join(s.dir, hash+".json")
}

func (s *FileStore) lockPath(hash string) string {
	return filepath.Join(s.dir, hash+".lock")
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
