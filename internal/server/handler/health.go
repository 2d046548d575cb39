// Package handler contains the relay's plain HTTP handlers.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

const checkTimeout = 2 * time.Second

// Pinger is an optional backing service probed by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GatewayStats exposes live gateway counters.
type GatewayStats interface {
	ConnectionCount() int
	MarketCount() int
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	stats    GatewayStats
	readOnly bool
	deps     map[string]Pinger
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler. deps maps a service name to its
// probe; nil entries are skipped.
func NewHealthHandler(stats GatewayStats, readOnly bool, deps map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		stats:    stats,
		readOnly: readOnly,
		deps:     deps,
		logger:   logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck reports liveness, gateway load and dependency reachability.
// Any failing dependency turns the status to "degraded" with a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.deps))
	for name, p := range h.deps {
		if p != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := h.deps[name].Ping(ctx)
		cancel()
		if err != nil {
			h.logger.WarnContext(r.Context(), "dependency unhealthy",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			deps[name] = "unreachable"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":       status,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"read_only":    h.readOnly,
		"connections":  h.stats.ConnectionCount(),
		"markets":      h.stats.MarketCount(),
		"dependencies": deps,
	})
}
