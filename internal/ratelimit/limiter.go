package ratelimit

import (
	"log/slog"
	"time"

	"almanac-api/internal/config"
)

// Limiter is a sliding-window counter of failed authentication attempts per
// client identifier. Only attempts newer than now-window count; the window
// slides rather than resetting on fixed boundaries.
//
// Reads (IsLimited, RemainingAttempts, RetryAfterSeconds) are lock-free
// snapshots that may trail a concurrent write by one increment. The count
// can never be decreased by a race, only transiently under-read, which
// self-corrects on the next read.
type Limiter struct {
	store       Store
	maxAttempts int
	window      time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewLimiter(store Store, cfg config.RateLimitConfig, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:       store,
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.Window,
		logger:      logger,
		now:         time.Now,
	}
}

// MaxAttempts returns the configured threshold.
func (l *Limiter) MaxAttempts() int {
	return l.maxAttempts
}

// IsLimited reports whether the identifier has reached the attempt threshold
// within the current window.
func (l *Limiter) IsLimited(id string) bool {
	return len(l.currentAttempts(id)) >= l.maxAttempts
}

// RecordFailure appends a failed attempt for the identifier. Stale attempts
// are pruned inside the same critical section so records do not grow without
// bound between cleanups.
func (l *Limiter) RecordFailure(id string) error {
	now := l.now()
	threshold := now.Add(-l.window).Unix()

	return l.store.Update(id, func(rec Record) Record {
		attempts := make([]int64, 0, len(rec.Attempts)+1)
		for _, ts := range rec.Attempts {
			if ts > threshold {
				attempts = append(attempts, ts)
			}
		}
		attempts = append(attempts, now.Unix())
		return Record{Attempts: attempts}
	})
}

// ClearAttempts deletes the identifier's record entirely. Called on
// successful authentication: a legitimate user who eventually got the
// password right must not stay penalized for earlier typos.
func (l *Limiter) ClearAttempts(id string) error {
	return l.store.Delete(id)
}

// RemainingAttempts returns how many failures are left before the
// identifier is limited.
func (l *Limiter) RemainingAttempts(id string) int {
	remaining := l.maxAttempts - len(l.currentAttempts(id))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RetryAfterSeconds returns 0 when not limited; otherwise the seconds until
// the oldest in-window attempt slides out of the window.
func (l *Limiter) RetryAfterSeconds(id string) int {
	attempts := l.currentAttempts(id)
	if len(attempts) < l.maxAttempts {
		return 0
	}

	oldest := attempts[0]
	for _, ts := range attempts[1:] {
		if ts < oldest {
			oldest = ts
		}
	}

	retryAfter := oldest + int64(l.window.Seconds()) - l.now().Unix()
	if retryAfter < 0 {
		return 0
	}
	return int(retryAfter)
}

// Cleanup removes records whose attempts have all aged out of the window.
// Meant for periodic out-of-band invocation, not the request path.
func (l *Limiter) Cleanup() (int, error) {
	now := l.now()
	threshold := now.Add(-l.window).Unix()

	return l.store.Sweep(now.Add(-l.window), func(rec Record) Record {
		attempts := make([]int64, 0, len(rec.Attempts))
		for _, ts := range rec.Attempts {
			if ts > threshold {
				attempts = append(attempts, ts)
			}
		}
		return Record{Attempts: attempts}
	})
}

func (l *Limiter) currentAttempts(id string) []int64 {
	rec, ok, err := l.store.Get(id)
	if err != nil {
		// Fail open on read errors: storage trouble must not lock out
		// legitimate logins. Still observable in the logs.
		if l.logger != nil {
			l.logger.Warn("failed to read attempt record", slog.Any("error", err))
		}
		return nil
	}
	if !ok {
		return nil
	}

	threshold := l.now().Add(-l.window).Unix()
	attempts := make([]int64, 0, len(rec.Attempts))
	for _, ts := range rec.Attempts {
		if ts > threshold {
			attempts = append(attempts, ts)
		}
	}
	return attempts
}
