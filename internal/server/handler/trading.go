package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/trading"
)

// TradingControl is the operator surface of the trading engine.
type TradingControl interface {
	Settings() domain.TradingSettings
	UpdateSettings(u trading.SettingsUpdate) (domain.TradingSettings, error)
	EnableTrading() error
	DisableTrading()
	EmergencyShutdown(ctx context.Context, reason string)
	ResetShutdown()
	Stats() trading.Stats
}

// TradingHandler serves the runtime trading controls.
type TradingHandler struct {
	engine TradingControl
	audit  domain.AuditLog
	logger *slog.Logger
}

// NewTradingHandler creates a TradingHandler. auditLog may be nil; a nil
// engine (monitor mode) makes every endpoint return 501.
func NewTradingHandler(engine TradingControl, auditLog domain.AuditLog, logger *slog.Logger) *TradingHandler {
	return &TradingHandler{
		engine: engine,
		audit:  auditLog,
		logger: logHandler(logger, "trading"),
	}
}

func (h *TradingHandler) available(w http.ResponseWriter) bool {
	if h.engine == nil {
		writeError(w, http.StatusNotImplemented, "trading is not available in monitor mode")
		return false
	}
	return true
}

// GetSettings returns the active settings.
// GET /api/trading/settings
func (h *TradingHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Settings())
}

// UpdateSettings applies a partial update. Either every field is applied
// or none is.
// PATCH /api/trading/settings
func (h *TradingHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var u trading.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	settings, err := h.engine.UpdateSettings(u)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSettingsValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, trading.ErrShutdown):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: update settings failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to update settings")
		}
		return
	}

	detail := map[string]any{}
	if raw, err := json.Marshal(u); err == nil {
		_ = json.Unmarshal(raw, &detail)
	}
	audit(r.Context(), h.audit, h.logger, "trading.settings", detail)
	writeJSON(w, http.StatusOK, settings)
}

// Enable turns trading on. It is refused while an emergency shutdown is
// active.
// POST /api/trading/enable
func (h *TradingHandler) Enable(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	if err := h.engine.EnableTrading(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	audit(r.Context(), h.audit, h.logger, "trading.enable", nil)
	writeJSON(w, http.StatusOK, map[string]bool{"trading_enabled": true})
}

// Disable turns trading off.
// POST /api/trading/disable
func (h *TradingHandler) Disable(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	h.engine.DisableTrading()
	audit(r.Context(), h.audit, h.logger, "trading.disable", nil)
	writeJSON(w, http.StatusOK, map[string]bool{"trading_enabled": false})
}

type shutdownRequest struct {
	Reason string `json:"reason"`
}

// Shutdown triggers the emergency stop. Executions already in flight are
// not cancelled.
// POST /api/trading/shutdown
func (h *TradingHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req shutdownRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "operator request"
	}
	h.engine.EmergencyShutdown(r.Context(), req.Reason)
	writeJSON(w, http.StatusOK, map[string]any{
		"emergency_shutdown": true,
		"reason":             req.Reason,
	})
}

// Reset clears an emergency shutdown. Trading stays disabled until it is
// enabled explicitly.
// POST /api/trading/reset
func (h *TradingHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	h.engine.ResetShutdown()
	audit(r.Context(), h.audit, h.logger, "trading.reset", nil)
	writeJSON(w, http.StatusOK, map[string]bool{"emergency_shutdown": false})
}

// Stats returns engine counters.
// GET /api/trading/stats
func (h *TradingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Stats())
}
