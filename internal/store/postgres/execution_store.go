package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const executionColumns = `id, status, total_value, error, opportunity, executed_at`

// ExecutionStore implements domain.ExecutionStore. Partial executions stay
// unreconciled until MarkReconciled.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)

// NewExecutionStore creates an ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Create inserts an execution and both legs in one transaction.
func (s *ExecutionStore) Create(ctx context.Context, res domain.ExecutionResult) error {
	oppJSON, err := json.Marshal(res.Opportunity)
	if err != nil {
		return fmt.Errorf("postgres: marshal opportunity: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	opp := res.Opportunity
	_, err = tx.Exec(ctx, `
		INSERT INTO executions (id, pair_id, direction, side, status, spread, execution_size, total_value, error, opportunity, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		res.ID, opp.Pair.ID, string(opp.Direction), string(opp.Side), string(res.Status()),
		opp.Spread, opp.ExecutionSize, res.TotalValue, res.Error, oppJSON, res.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", res.ID, err)
	}

	for _, leg := range []struct {
		name string
		l    domain.LegResult
	}{{"A", res.LegA}, {"B", res.LegB}} {
		_, err = tx.Exec(ctx, `
			INSERT INTO execution_legs (execution_id, leg, venue, market_id, side, action, quantity, limit_price, success, order_id, filled_quantity, filled_price, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			res.ID, leg.name, string(leg.l.Venue), leg.l.MarketID, string(leg.l.Side), string(leg.l.Action),
			leg.l.Quantity, leg.l.LimitPrice, leg.l.Success, leg.l.OrderID,
			leg.l.FilledQuantity, leg.l.FilledPrice, leg.l.Error,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert execution leg %s/%s: %w", res.ID, leg.name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit execution %s: %w", res.ID, err)
	}
	return nil
}

// GetByID returns one execution with its legs.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.ExecutionResult, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	res, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionResult{}, domain.ErrNotFound
		}
		return domain.ExecutionResult{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	list := []domain.ExecutionResult{res}
	if err := s.attachLegs(ctx, list); err != nil {
		return domain.ExecutionResult{}, err
	}
	return list[0], nil
}

// ListRecent returns executions newest first. Limit defaults to 50.
func (s *ExecutionStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ExecutionResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	query := `SELECT ` + executionColumns + ` FROM executions WHERE 1=1`
	args := []any{}
	argIdx := 1
	if opts.Since != nil {
		query += fmt.Sprintf(" AND executed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	query, args = paginate(query, args, argIdx, "executed_at DESC", opts.Limit, opts.Offset)
	return s.list(ctx, query, args...)
}

// ListUnreconciled returns partial executions nobody has reconciled yet,
// oldest first.
func (s *ExecutionStore) ListUnreconciled(ctx context.Context) ([]domain.ExecutionResult, error) {
	return s.list(ctx, `SELECT `+executionColumns+` FROM executions
		WHERE status = $1 AND reconciled_at IS NULL ORDER BY executed_at`, string(domain.ExecPartial))
}

// MarkReconciled closes out a partial execution.
func (s *ExecutionStore) MarkReconciled(ctx context.Context, id, note string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions SET reconciled_at = $2, reconcile_note = $3
		WHERE id = $1 AND reconciled_at IS NULL`,
		id, time.Now().UTC(), note,
	)
	if err != nil {
		return fmt.Errorf("postgres: reconcile execution %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: reconcile execution %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *ExecutionStore) list(ctx context.Context, query string, args ...any) ([]domain.ExecutionResult, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionResult
	for rows.Next() {
		res, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list executions rows: %w", err)
	}
	if err := s.attachLegs(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachLegs loads the legs of every execution in one query.
func (s *ExecutionStore) attachLegs(ctx context.Context, list []domain.ExecutionResult) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	byID := make(map[string]*domain.ExecutionResult, len(list))
	for i := range list {
		ids[i] = list[i].ID
		byID[list[i].ID] = &list[i]
	}

	rows, err := s.pool.Query(ctx, `
		SELECT execution_id, leg, venue, market_id, side, action, quantity, limit_price, success, order_id, filled_quantity, filled_price, error
		FROM execution_legs WHERE execution_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("postgres: list execution legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			execID, leg, venue, side, action string
			l                                domain.LegResult
		)
		if err := rows.Scan(&execID, &leg, &venue, &l.MarketID, &side, &action,
			&l.Quantity, &l.LimitPrice, &l.Success, &l.OrderID,
			&l.FilledQuantity, &l.FilledPrice, &l.Error); err != nil {
			return fmt.Errorf("postgres: scan execution leg: %w", err)
		}
		l.Venue = domain.Venue(venue)
		l.Side = domain.Outcome(side)
		l.Action = domain.Action(action)

		res, ok := byID[execID]
		if !ok {
			continue
		}
		if leg == "A" {
			res.LegA = l
		} else {
			res.LegB = l
		}
	}
	return rows.Err()
}

func scanExecution(row pgx.Row) (domain.ExecutionResult, error) {
	var (
		res     domain.ExecutionResult
		status  string
		oppJSON []byte
	)
	if err := row.Scan(&res.ID, &status, &res.TotalValue, &res.Error, &oppJSON, &res.Timestamp); err != nil {
		return domain.ExecutionResult{}, err
	}
	if err := json.Unmarshal(oppJSON, &res.Opportunity); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("decode opportunity: %w", err)
	}
	applyStatus(&res, domain.ExecStatus(status))
	return res, nil
}

func applyStatus(res *domain.ExecutionResult, status domain.ExecStatus) {
	res.Success = status == domain.ExecFilled
	res.Partial = status == domain.ExecPartial
}
