package domain

import "time"

// ExecStatus is the terminal state of a two-leg execution.
type ExecStatus string

const (
	ExecFilled  ExecStatus = "filled"
	ExecPartial ExecStatus = "partial"
	ExecFailed  ExecStatus = "failed"
)

// OrderRequest is what the coordinator sends to a venue executor.
type OrderRequest struct {
	MarketID string  `json:"market_id"`
	Side     Outcome `json:"side"`
	Action   Action  `json:"action"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// OrderFill is a venue executor's answer to place_order.
type OrderFill struct {
	Success        bool    `json:"success"`
	OrderID        string  `json:"order_id,omitempty"`
	FilledQuantity float64 `json:"filled_quantity"`
	FilledPrice    float64 `json:"filled_price"`
	Error          string  `json:"error,omitempty"`
}

// LegResult records the outcome of one leg.
type LegResult struct {
	Venue          Venue   `json:"venue"`
	MarketID       string  `json:"market_id"`
	Side           Outcome `json:"side"`
	Action         Action  `json:"action"`
	Quantity       float64 `json:"quantity"`
	LimitPrice     float64 `json:"limit_price"`
	Success        bool    `json:"success"`
	OrderID        string  `json:"order_id,omitempty"`
	FilledQuantity float64 `json:"filled_quantity"`
	FilledPrice    float64 `json:"filled_price"`
	Error          string  `json:"error,omitempty"`
}

// Value is filled quantity times filled price.
func (l LegResult) Value() float64 {
	return l.FilledQuantity * l.FilledPrice
}

// ExecutionResult is the aggregate of a two-leg execution. When Partial is
// set an unhedged position exists and both legs are kept for reconciliation.
type ExecutionResult struct {
	ID          string               `json:"id"`
	Opportunity ArbitrageOpportunity `json:"opportunity"`
	Success     bool                 `json:"success"`
	Partial     bool                 `json:"partial"`
	LegA        LegResult            `json:"leg_a"`
	LegB        LegResult            `json:"leg_b"`
	TotalValue  float64              `json:"total_value"`
	Error       string               `json:"error,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

// Status maps the result onto ExecStatus.
func (r ExecutionResult) Status() ExecStatus {
	switch {
	case r.Success:
		return ExecFilled
	case r.Partial:
		return ExecPartial
	default:
		return ExecFailed
	}
}
