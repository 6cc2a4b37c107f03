package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/crossarb/internal/arbitrage"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// PairDetector is the slice of the arbitrage detector the pair endpoints use.
type PairDetector interface {
	Pairs() []domain.MarketPair
	AddMarketPair(pairID, kalshiTicker, polyYesAsset, polyNoAsset string) error
	RemoveMarketPair(pairID string) bool
	CheckPair(pairID string, opts ...arbitrage.CheckOption) ([]domain.ArbitrageOpportunity, error)
	Stats() arbitrage.DetectorStats
	SetMinSpread(v float64) error
}

// PairHandler manages watched market pairs and on-demand checks.
type PairHandler struct {
	detector PairDetector
	audit    domain.AuditLog
	logger   *slog.Logger
}

// NewPairHandler creates a PairHandler. auditLog may be nil.
func NewPairHandler(detector PairDetector, auditLog domain.AuditLog, logger *slog.Logger) *PairHandler {
	return &PairHandler{
		detector: detector,
		audit:    auditLog,
		logger:   logHandler(logger, "pairs"),
	}
}

// ListPairs returns every registered pair.
// GET /api/pairs
func (h *PairHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pairs": h.detector.Pairs()})
}

// AddPair registers or replaces a pair.
// POST /api/pairs
func (h *PairHandler) AddPair(w http.ResponseWriter, r *http.Request) {
	var p domain.MarketPair
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.detector.AddMarketPair(p.ID, p.KalshiTicker, p.PolyYesAsset, p.PolyNoAsset); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	audit(r.Context(), h.audit, h.logger, "pair.add", map[string]any{
		"pair_id":        p.ID,
		"kalshi_ticker":  p.KalshiTicker,
		"poly_yes_asset": p.PolyYesAsset,
		"poly_no_asset":  p.PolyNoAsset,
	})
	writeJSON(w, http.StatusCreated, p)
}

// RemovePair unregisters a pair.
// DELETE /api/pairs/{id}
func (h *PairHandler) RemovePair(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if !h.detector.RemoveMarketPair(id) {
		writeError(w, http.StatusNotFound, "pair not found")
		return
	}
	audit(r.Context(), h.audit, h.logger, "pair.remove", map[string]any{"pair_id": id})
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "removed",
		"pair_id": id,
	})
}

// CheckPair evaluates a pair against the current books without emitting
// alerts. unfiltered=true also returns candidates below the threshold.
// GET /api/pairs/{id}/check?unfiltered=true
func (h *PairHandler) CheckPair(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var opts []arbitrage.CheckOption
	if v, _ := strconv.ParseBool(r.URL.Query().Get("unfiltered")); v {
		opts = append(opts, arbitrage.Unfiltered())
	}

	opps, err := h.detector.CheckPair(id, opts...)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownPair) {
			writeError(w, http.StatusNotFound, "pair not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: check pair failed",
			slog.String("pair_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to check pair")
		return
	}
	if opps == nil {
		opps = []domain.ArbitrageOpportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pair_id":       id,
		"opportunities": opps,
	})
}

// DetectorStats returns detector counters.
// GET /api/detector/stats
func (h *PairHandler) DetectorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.detector.Stats())
}

type minSpreadRequest struct {
	MinSpread *float64 `json:"min_spread"`
}

// UpdateMinSpread changes the alert threshold.
// PATCH /api/detector
func (h *PairHandler) UpdateMinSpread(w http.ResponseWriter, r *http.Request) {
	var req minSpreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MinSpread == nil {
		writeError(w, http.StatusBadRequest, "min_spread is required")
		return
	}
	if err := h.detector.SetMinSpread(*req.MinSpread); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	audit(r.Context(), h.audit, h.logger, "detector.min_spread", map[string]any{"min_spread": *req.MinSpread})
	writeJSON(w, http.StatusOK, h.detector.Stats())
}
