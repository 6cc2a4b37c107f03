package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// ExecutionHandler serves the execution journal.
type ExecutionHandler struct {
	store  domain.ExecutionStore // optional; when nil every endpoint returns 501
	audit  domain.AuditLog
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler. Both store and auditLog
// may be nil.
func NewExecutionHandler(store domain.ExecutionStore, auditLog domain.AuditLog, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		store:  store,
		audit:  auditLog,
		logger: logHandler(logger, "executions"),
	}
}

func (h *ExecutionHandler) available(w http.ResponseWriter) bool {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "execution journal not configured")
		return false
	}
	return true
}

type listExecutionsResponse struct {
	Executions []domain.ExecutionResult `json:"executions"`
}

// ListRecent returns the newest executions first.
// GET /api/executions?limit=50&offset=0
func (h *ExecutionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	list, err := h.store.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if list == nil {
		list = []domain.ExecutionResult{}
	}
	writeJSON(w, http.StatusOK, listExecutionsResponse{Executions: list})
}

// ListUnreconciled returns partial executions still awaiting an operator.
// GET /api/executions/unreconciled
func (h *ExecutionHandler) ListUnreconciled(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	list, err := h.store.ListUnreconciled(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list unreconciled failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if list == nil {
		list = []domain.ExecutionResult{}
	}
	writeJSON(w, http.StatusOK, listExecutionsResponse{Executions: list})
}

// GetExecution returns one execution with both legs.
// GET /api/executions/{id}
func (h *ExecutionHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	id := pathParam(r, "id")
	res, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get execution failed",
			slog.String("execution_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type reconcileRequest struct {
	Note string `json:"note"`
}

// Reconcile marks a partial execution as handled.
// POST /api/executions/{id}/reconcile
func (h *ExecutionHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	id := pathParam(r, "id")
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Note == "" {
		writeError(w, http.StatusBadRequest, "note is required")
		return
	}

	if err := h.store.MarkReconciled(r.Context(), id, req.Note); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: reconcile failed",
			slog.String("execution_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to reconcile execution")
		return
	}
	audit(r.Context(), h.audit, h.logger, "execution.reconcile", map[string]any{
		"execution_id": id,
		"note":         req.Note,
	})
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "reconciled",
		"execution_id": id,
	})
}
