package background

import (
	"context"
	"log/slog"
	"time"

	"almanac-api/internal/ratelimit"
)

// CleanupManager periodically sweeps aged-out attempt records from the
// rate-limit store, keeping the sweep off the request path.
type CleanupManager struct {
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(limiter *ratelimit.Limiter, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		limiter:  limiter,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup()

	for {
		select {
		case <-ticker.C:
			cm.runCleanup()
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup() {
	removed, err := cm.limiter.Cleanup()
	if err != nil {
		cm.logger.Error("failed to clean up attempt records", slog.Any("error", err))
		return
	}

	if removed > 0 {
		cm.logger.Info("attempt record cleanup completed", slog.Int("records_removed", removed))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
