package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// AuditHandler serves the operator audit trail.
type AuditHandler struct {
	log    domain.AuditLog
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler. log may be nil.
func NewAuditHandler(log domain.AuditLog, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{log: log, logger: logHandler(logger, "audit")}
}

// List returns audit entries, newest first.
// GET /api/audit?limit=50&offset=0
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.log == nil {
		writeError(w, http.StatusNotImplemented, "audit log not configured")
		return
	}
	entries, err := h.log.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
