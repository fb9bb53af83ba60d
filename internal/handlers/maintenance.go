package handlers

import (
	"log/slog"
	"net/http"

	"almanac-api/internal/ratelimit"
	pkghttp "almanac-api/pkg/http"
)

// MaintenanceHandler exposes operational tasks behind the authenticated
// admin surface.
type MaintenanceHandler struct {
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

func NewMaintenanceHandler(limiter *ratelimit.Limiter, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		limiter: limiter,
		logger:  logger,
	}
}

// CleanupRateLimit triggers an immediate sweep of aged-out attempt records,
// the same sweep the background manager runs on its interval.
func (h *MaintenanceHandler) CleanupRateLimit(w http.ResponseWriter, r *http.Request) {
	removed, err := h.limiter.Cleanup()
	if err != nil {
		h.logger.Error("rate limit cleanup failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "cleanup failed")
		return
	}

	h.logger.Info("rate limit cleanup completed", slog.Int("records_removed", removed))
	pkghttp.WriteJSON(w, http.StatusOK, map[string]int{"records_removed": removed})
}
