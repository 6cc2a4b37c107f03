package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// RecentOpportunities reads alerts back from a shared stream.
type RecentOpportunities interface {
	RecentOpportunities(ctx context.Context, n int) ([]domain.ArbitrageOpportunity, error)
}

// OpportunityHandler serves recently published opportunities.
type OpportunityHandler struct {
	recent RecentOpportunities
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler. recent may be nil.
func NewOpportunityHandler(recent RecentOpportunities, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{recent: recent, logger: logHandler(logger, "opportunities")}
}

// ListRecent returns the most recent opportunities.
// GET /api/opportunities/recent?limit=20
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.recent == nil {
		writeError(w, http.StatusNotImplemented, "opportunity stream not configured")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 200 {
		limit = 200
	}

	opps, err := h.recent.RecentOpportunities(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.ArbitrageOpportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}
