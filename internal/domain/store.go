package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// ExecutionStore journals every two-leg execution. Partial executions stay
// flagged until an operator marks them reconciled.
type ExecutionStore interface {
	Create(ctx context.Context, res ExecutionResult) error
	GetByID(ctx context.Context, id string) (ExecutionResult, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]ExecutionResult, error)
	ListUnreconciled(ctx context.Context) ([]ExecutionResult, error)
	MarkReconciled(ctx context.Context, id string, note string) error
}

// AuditEntry is one operator-visible control action.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditLog records control actions such as settings changes and
// emergency shutdowns.
type AuditLog interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
