package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

// readyHandler returns 200 OK once the daemon can serve relay traffic.
//
// Readiness checks:
// 1. Database connectivity (if using PostgreSQL storage)
// 2. Registry reachability (one owner read for the relayer address)
//
// Returns 200 OK if all checks pass, 503 Service Unavailable if any check fails.
func (h *Handler) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if db, ok := h.store.(interface{ DB() *sql.DB }); ok {
		if err := db.DB().PingContext(ctx); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "database not ready", correlationIDFrom(r.Context()), nil)
			return
		}
	}

	if _, err := h.provider.Owner(ctx, h.relayer.Address()); err != nil {
		h.logger.Warn("registry not ready", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "registry not ready", correlationIDFrom(r.Context()), nil)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
