package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/feed"
)

// FeedStats reports per-venue event counters of the feed router.
type FeedStats interface {
	Stats() map[domain.Venue]feed.Stats
}

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checks map[string]HealthCheck
	feed   FeedStats
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided logger.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checks: make(map[string]HealthCheck),
		logger: logHandler(logger, "health"),
	}
}

// WithCheck registers a named dependency probe such as "redis" or "postgres".
func (h *HealthHandler) WithCheck(name string, check HealthCheck) *HealthHandler {
	h.checks[name] = check
	return h
}

// WithFeed attaches the feed router counters to the response.
func (h *HealthHandler) WithFeed(f FeedStats) *HealthHandler {
	h.feed = f
	return h
}

type healthResponse struct {
	Status    string                      `json:"status"`
	Timestamp string                      `json:"timestamp"`
	Checks    map[string]string           `json:"checks,omitempty"`
	Feed      map[domain.Venue]feed.Stats `json:"feed,omitempty"`
}

// HealthCheck reports "ok" when every dependency probe passes and
// "degraded" with a 503 otherwise.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		resp.Checks = make(map[string]string, len(names))
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		for _, name := range names {
			if err := h.checks[name](ctx); err != nil {
				h.logger.WarnContext(ctx, "handler: health check failed",
					slog.String("check", name),
					slog.String("error", err.Error()),
				)
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	if h.feed != nil {
		resp.Feed = h.feed.Stats()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
