package app

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

type recordingSink struct {
	mu    sync.Mutex
	opps  []string
	execs []string
	err   error
}

func (r *recordingSink) PublishOpportunity(_ context.Context, opp domain.ArbitrageOpportunity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opps = append(r.opps, opp.Pair.ID)
	return r.err
}

func (r *recordingSink) PublishExecution(_ context.Context, res domain.ExecutionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs = append(r.execs, res.ID)
	return r.err
}

func (r *recordingSink) oppCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.opps)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func opp(id string) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{Pair: domain.MarketPair{ID: id}, Spread: 0.05, ExecutionSize: 10}
}

func TestSinksFanOut(t *testing.T) {
	failing := &recordingSink{err: errors.New("redis down")}
	ok := &recordingSink{}

	s := newSinks(discardLogger())
	s.addAlerts(failing)
	s.addAlerts(ok)
	s.addExecutions(failing)
	s.addExecutions(ok)

	ctx := context.Background()
	require.NoError(t, s.PublishOpportunity(ctx, opp("btc")))
	require.NoError(t, s.PublishExecution(ctx, domain.ExecutionResult{ID: "exec-1"}))

	assert.Equal(t, []string{"btc"}, failing.opps)
	assert.Equal(t, []string{"btc"}, ok.opps)
	assert.Equal(t, []string{"exec-1"}, ok.execs)
}

func TestDispatchAlerts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	alerts := make(chan domain.ArbitrageOpportunity, 2)
	engine := make(chan domain.ArbitrageOpportunity, 2)
	sink := &recordingSink{}

	done := make(chan error, 1)
	go func() { done <- dispatchAlerts(ctx, alerts, engine, sink) }()

	alerts <- opp("a")
	alerts <- opp("b")

	assert.Equal(t, "a", (<-engine).Pair.ID)
	assert.Equal(t, "b", (<-engine).Pair.ID)
	require.Eventually(t, func() bool { return sink.oppCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	_, open := <-engine
	assert.False(t, open, "engine channel is closed on exit")
}

func TestDispatchAlertsMonitorMode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	alerts := make(chan domain.ArbitrageOpportunity, 1)
	sink := &recordingSink{}

	done := make(chan error, 1)
	go func() { done <- dispatchAlerts(ctx, alerts, nil, sink) }()

	alerts <- opp("solo")
	require.Eventually(t, func() bool { return sink.oppCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
