package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Healthz reports that the process is serving.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: map[string]string{"status": "ok"}})
}

// Readyz reports whether the store answers a ping.
func Readyz(store Pinger, log *zap.Logger) http.HandlerFunc {
	rs := newResponder(log)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			rs.log.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, Envelope{
				Success: false,
				Message: "Service unavailable",
				Data:    map[string]string{"status": "unavailable"},
			})
			return
		}
		writeJSON(w, http.StatusOK, Envelope{Success: true, Data: map[string]string{"status": "ready"}})
	}
}
