package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

var (
	testNow  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testPair = domain.MarketPair{ID: "btc-100k", KalshiTicker: "KXBTC-100K", PolyYesAsset: "tok-yes", PolyNoAsset: "tok-no"}
)

type fakeVenue struct {
	mu    sync.Mutex
	reqs  []domain.OrderRequest
	place func(req domain.OrderRequest) (domain.OrderFill, error)
}

func (f *fakeVenue) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderFill, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.place(req)
}

func (f *fakeVenue) requests() []domain.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrderRequest(nil), f.reqs...)
}

func fills(id string) *fakeVenue {
	return &fakeVenue{place: func(req domain.OrderRequest) (domain.OrderFill, error) {
		return domain.OrderFill{Success: true, OrderID: id, FilledQuantity: req.Quantity, FilledPrice: req.Price}, nil
	}}
}

type recordingStore struct {
	domain.ExecutionStore
	mu      sync.Mutex
	created []domain.ExecutionResult
}

func (s *recordingStore) Create(_ context.Context, res domain.ExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, res)
	return nil
}

func opportunity(dir domain.Direction, side domain.Outcome) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		Pair:          testPair,
		Direction:     dir,
		Side:          side,
		PriceA:        0.70,
		PriceB:        0.33,
		QuoteA:        0.70,
		QuoteB:        0.33,
		Spread:        0.03,
		ExecutionSize: 100,
		Timestamp:     testNow,
	}
}

func newCoordinator(kalshi, poly VenueExecutor, handlers ...PartialHandler) (*Coordinator, *recordingStore) {
	store := &recordingStore{}
	c := NewCoordinator(CoordinatorConfig{
		Kalshi:          kalshi,
		Polymarket:      poly,
		Journal:         store,
		PartialHandlers: handlers,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:             func() time.Time { return testNow },
		NewID:           func() string { return "exec-1" },
	})
	return c, store
}

func TestExecuteBothLegsFill(t *testing.T) {
	k, p := fills("K1"), fills("P1")
	c, store := newCoordinator(k, p)

	res, err := c.Execute(context.Background(), opportunity(domain.DirectionAToB, domain.OutcomeYes), 0, 100)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.Partial)
	assert.Empty(t, res.Error)
	assert.Equal(t, "exec-1", res.ID)
	assert.Equal(t, testNow, res.Timestamp)
	assert.Equal(t, "K1", res.LegA.OrderID)
	assert.Equal(t, "P1", res.LegB.OrderID)
	assert.InDelta(t, 100*0.70+100*0.33, res.TotalValue, 1e-9)
	assert.Equal(t, domain.ExecFilled, res.Status())
	require.Len(t, store.created, 1)
}

func TestExecuteLegMapping(t *testing.T) {
	tests := []struct {
		name  string
		dir   domain.Direction
		side  domain.Outcome
		wantA domain.OrderRequest
		wantB domain.OrderRequest
	}{
		{
			name:  "A_to_B yes",
			dir:   domain.DirectionAToB,
			side:  domain.OutcomeYes,
			wantA: domain.OrderRequest{MarketID: "KXBTC-100K", Side: domain.OutcomeYes, Action: domain.ActionSell, Quantity: 100, Price: 0.69},
			wantB: domain.OrderRequest{MarketID: "tok-no", Side: domain.OutcomeNo, Action: domain.ActionBuy, Quantity: 100, Price: 0.34},
		},
		{
			name:  "B_to_A yes",
			dir:   domain.DirectionBToA,
			side:  domain.OutcomeYes,
			wantA: domain.OrderRequest{MarketID: "KXBTC-100K", Side: domain.OutcomeNo, Action: domain.ActionBuy, Quantity: 100, Price: 0.71},
			wantB: domain.OrderRequest{MarketID: "tok-yes", Side: domain.OutcomeYes, Action: domain.ActionSell, Quantity: 100, Price: 0.32},
		},
		{
			name:  "A_to_B no",
			dir:   domain.DirectionAToB,
			side:  domain.OutcomeNo,
			wantA: domain.OrderRequest{MarketID: "KXBTC-100K", Side: domain.OutcomeNo, Action: domain.ActionSell, Quantity: 100, Price: 0.69},
			wantB: domain.OrderRequest{MarketID: "tok-yes", Side: domain.OutcomeYes, Action: domain.ActionBuy, Quantity: 100, Price: 0.34},
		},
		{
			name:  "B_to_A no",
			dir:   domain.DirectionBToA,
			side:  domain.OutcomeNo,
			wantA: domain.OrderRequest{MarketID: "KXBTC-100K", Side: domain.OutcomeYes, Action: domain.ActionBuy, Quantity: 100, Price: 0.71},
			wantB: domain.OrderRequest{MarketID: "tok-no", Side: domain.OutcomeNo, Action: domain.ActionSell, Quantity: 100, Price: 0.32},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, p := fills("K"), fills("P")
			c, _ := newCoordinator(k, p)

			_, err := c.Execute(context.Background(), opportunity(tt.dir, tt.side), 0.01, 100)
			require.NoError(t, err)

			require.Len(t, k.requests(), 1)
			require.Len(t, p.requests(), 1)
			assertOrder(t, tt.wantA, k.requests()[0])
			assertOrder(t, tt.wantB, p.requests()[0])
		})
	}
}

func assertOrder(t *testing.T, want, got domain.OrderRequest) {
	t.Helper()
	assert.Equal(t, want.MarketID, got.MarketID)
	assert.Equal(t, want.Side, got.Side)
	assert.Equal(t, want.Action, got.Action)
	assert.Equal(t, want.Quantity, got.Quantity)
	assert.InDelta(t, want.Price, got.Price, 1e-9)
}

func TestExecuteSlippageClamped(t *testing.T) {
	k, p := fills("K"), fills("P")
	c, _ := newCoordinator(k, p)

	opp := opportunity(domain.DirectionAToB, domain.OutcomeYes)
	opp.QuoteA, opp.QuoteB = 0.01, 0.995
	_, err := c.Execute(context.Background(), opp, 0.05, 100)
	require.NoError(t, err)

	assert.InDelta(t, minLimit, k.requests()[0].Price, 1e-9)
	assert.InDelta(t, maxLimit, p.requests()[0].Price, 1e-9)
}

func TestExecutePartialWhenLegPanics(t *testing.T) {
	k := fills("X")
	p := &fakeVenue{place: func(domain.OrderRequest) (domain.OrderFill, error) {
		panic("venue B connection reset")
	}}

	var handled []domain.ExecutionResult
	c, store := newCoordinator(k, p, PartialHandlerFunc(func(_ context.Context, res domain.ExecutionResult) error {
		handled = append(handled, res)
		return nil
	}))

	res, err := c.Execute(context.Background(), opportunity(domain.DirectionAToB, domain.OutcomeYes), 0, 100)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.Partial)
	assert.Equal(t, "partial execution", res.Error)
	assert.Equal(t, domain.ExecPartial, res.Status())

	assert.True(t, res.LegA.Success)
	assert.Equal(t, "X", res.LegA.OrderID)
	assert.False(t, res.LegB.Success)
	assert.Contains(t, res.LegB.Error, "venue B connection reset")
	assert.Equal(t, domain.VenuePolymarket, res.LegB.Venue)

	require.Len(t, handled, 1)
	assert.Equal(t, res.ID, handled[0].ID)
	require.Len(t, store.created, 1)
	assert.True(t, store.created[0].Partial)
}

func TestExecutePartialWhenLegErrors(t *testing.T) {
	k := &fakeVenue{place: func(domain.OrderRequest) (domain.OrderFill, error) {
		return domain.OrderFill{}, errors.New("timeout")
	}}
	p := fills("P9")

	calls := 0
	c, _ := newCoordinator(k, p,
		PartialHandlerFunc(func(context.Context, domain.ExecutionResult) error {
			calls++
			return errors.New("telegram down")
		}),
		PartialHandlerFunc(func(context.Context, domain.ExecutionResult) error {
			calls++
			return nil
		}),
	)

	res, err := c.Execute(context.Background(), opportunity(domain.DirectionBToA, domain.OutcomeNo), 0, 100)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, "timeout", res.LegA.Error)
	assert.True(t, res.LegB.Success)
	assert.InDelta(t, 100*0.33, res.TotalValue, 1e-9)
	assert.Equal(t, 2, calls, "a failing handler does not stop the others")
}

func TestExecuteBothLegsFail(t *testing.T) {
	reject := &fakeVenue{place: func(domain.OrderRequest) (domain.OrderFill, error) {
		return domain.OrderFill{Success: false}, nil
	}}
	called := false
	c, _ := newCoordinator(reject, reject, PartialHandlerFunc(func(context.Context, domain.ExecutionResult) error {
		called = true
		return nil
	}))

	res, err := c.Execute(context.Background(), opportunity(domain.DirectionAToB, domain.OutcomeNo), 0, 100)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.False(t, res.Partial)
	assert.Equal(t, "order rejected", res.LegA.Error)
	assert.Equal(t, domain.ExecFailed, res.Status())
	assert.False(t, called)
}

func TestExecuteSizingError(t *testing.T) {
	k, p := fills("K"), fills("P")
	c, store := newCoordinator(k, p)

	opp := opportunity(domain.DirectionAToB, domain.OutcomeYes)
	opp.ExecutionSize = 150
	_, err := c.Execute(context.Background(), opp, 0, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPositionSize)

	opp.ExecutionSize = 0
	_, err = c.Execute(context.Background(), opp, 0, 100)
	require.Error(t, err)

	assert.Empty(t, k.requests())
	assert.Empty(t, p.requests())
	assert.Empty(t, store.created)
}

func TestExecuteWholeContracts(t *testing.T) {
	tests := []struct {
		name string
		size float64
		want float64
	}{
		{"fraction above one", 2.5, 2},
		{"float noise", 2.9999999999, 3},
		{"whole", 7, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, p := fills("K"), fills("P")
			c, _ := newCoordinator(k, p)

			opp := opportunity(domain.DirectionAToB, domain.OutcomeYes)
			opp.ExecutionSize = tt.size
			res, err := c.Execute(context.Background(), opp, 0, 100)
			require.NoError(t, err)

			require.Len(t, k.requests(), 1)
			require.Len(t, p.requests(), 1)
			assert.Equal(t, tt.want, k.requests()[0].Quantity)
			assert.Equal(t, tt.want, p.requests()[0].Quantity, "both legs carry the same size")
			assert.Equal(t, tt.want, res.Opportunity.ExecutionSize)
			assert.True(t, res.Success)
		})
	}
}

func TestExecuteBelowOneContractSendsNothing(t *testing.T) {
	k, p := fills("K"), fills("P")
	c, store := newCoordinator(k, p)

	opp := opportunity(domain.DirectionAToB, domain.OutcomeYes)
	opp.ExecutionSize = 0.5
	_, err := c.Execute(context.Background(), opp, 0, 100)
	require.ErrorIs(t, err, domain.ErrBelowOneContract)

	assert.Empty(t, k.requests())
	assert.Empty(t, p.requests())
	assert.Empty(t, store.created)
}

func TestExecuteMissingExecutor(t *testing.T) {
	c, _ := newCoordinator(fills("K"), nil)

	res, err := c.Execute(context.Background(), opportunity(domain.DirectionAToB, domain.OutcomeYes), 0, 100)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Contains(t, res.LegB.Error, "no executor")
}
