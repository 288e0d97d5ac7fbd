package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a named infrastructure dependency that can report liveness.
type Pinger struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint, probing each registered
// dependency.
type HealthHandler struct {
	deps   []Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler over the given dependencies.
func NewHealthHandler(deps []Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{deps: deps, logger: logger}
}

// HealthCheck reports overall and per-dependency status. Any failing
// dependency degrades the response to 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for _, d := range h.deps {
		if err := d.Ping(ctx); err != nil {
			checks[d.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[d.Name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"status":    overall,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
