package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"chanwatch/internal/dedupe"
	"chanwatch/internal/model"
	"chanwatch/internal/store"
)

func genBars(n int, closeAt func(i int) float64) []model.Bar {
	bars := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		c := closeAt(i)
		bars[i] = model.Bar{TimeSec: int64(i * 60), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return bars
}

func newTestOrchestrator() *Orchestrator {
	return New(dedupe.New(5*time.Minute), store.New(500, 5, 8*time.Second), nil, func() int64 { return 1_000 }, nil, nil)
}

func TestRun_TooFewBars_ReturnsEmptyOutcome(t *testing.T) {
	o := newTestOrchestrator()
	bars := genBars(3, func(i int) float64 { return 100 })
	out := o.Run(context.Background(), bars, "X", model.MarketUS, model.Timeframe1H)
	if out.Err != nil {
		t.Fatalf("expected no error for short input, got %v", out.Err)
	}
	if out.Signals != nil || len(out.Chanlun.Bis) != 0 {
		t.Errorf("expected a zero-value outcome for insufficient data, got %+v", out)
	}
}

func TestRun_MalformedBar_RejectsWithoutTouchingStoreOrDedup(t *testing.T) {
	o := newTestOrchestrator()
	bars := genBars(10, func(i int) float64 { return 100 + float64(i) })
	bars[4].High = 50 // violates high >= max(open,close)

	out := o.Run(context.Background(), bars, "X", model.MarketUS, model.Timeframe1H)
	if !errors.Is(out.Err, model.ErrMalformedBar) {
		t.Fatalf("expected ErrMalformedBar, got %v", out.Err)
	}
	if len(o.Store.Snapshot()) != 0 {
		t.Error("expected the store to remain untouched after a malformed-bar rejection")
	}
}

func TestRun_InvalidParams_RejectsAsConfigError(t *testing.T) {
	o := New(dedupe.New(5*time.Minute), store.New(500, 5, 8*time.Second),
		func(model.Market) model.ChanlunParams {
			bad := model.DefaultChanlunParams()
			bad.MinBiKBars = 0
			return bad
		}, nil, nil, nil)
	bars := genBars(10, func(i int) float64 { return 100 + float64(i) })

	out := o.Run(context.Background(), bars, "X", model.MarketUS, model.Timeframe1H)
	if !errors.Is(out.Err, model.ErrConfigError) {
		t.Fatalf("expected ErrConfigError, got %v", out.Err)
	}
}

func TestRun_HealthyInput_PostsSignalsToStore(t *testing.T) {
	o := newTestOrchestrator()
	// A long enough oscillating series that some detector is near-certain to fire.
	closes := []float64{
		100, 101, 103, 106, 104, 101, 98, 95, 93, 96,
		99, 103, 108, 112, 109, 105, 101, 98, 96, 99,
		103, 108, 114, 118, 115, 110, 106, 102, 99, 104,
	}
	bars := genBars(len(closes), func(i int) float64 { return closes[i] })

	out := o.Run(context.Background(), bars, "BTCUSD", model.MarketCrypto, model.Timeframe1H)
	if out.Err != nil {
		t.Fatalf("expected a clean run, got %v", out.Err)
	}
	snap := o.Store.Snapshot()
	if len(snap) != len(out.Signals) {
		t.Errorf("expected store snapshot to match the run's emitted signals, got %d vs %d", len(snap), len(out.Signals))
	}
}

func TestRun_CancelledContext_ShortCircuitsBeforeIndicators(t *testing.T) {
	o := newTestOrchestrator()
	bars := genBars(10, func(i int) float64 { return 100 + float64(i) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := o.Run(ctx, bars, "X", model.MarketUS, model.Timeframe1H)
	if out.Err != nil {
		t.Errorf("expected cancellation to yield an empty outcome, not an error, got %v", out.Err)
	}
	if len(o.Store.Snapshot()) != 0 {
		t.Error("expected a cancelled run to leave the store untouched")
	}
}

// S7-adjacent: running the same healthy bars twice within the dedup window
// should not double the store's contents for repeat signal kinds.
func TestRun_SecondRunWithinWindow_SuppressesDuplicateKinds(t *testing.T) {
	o := newTestOrchestrator()
	closes := []float64{
		100, 101, 103, 106, 104, 101, 98, 95, 93, 96,
		99, 103, 108, 112, 109, 105, 101, 98, 96, 99,
		103, 108, 114, 118, 115, 110, 106, 102, 99, 104,
	}
	bars := genBars(len(closes), func(i int) float64 { return closes[i] })

	first := o.Run(context.Background(), bars, "BTCUSD", model.MarketCrypto, model.Timeframe1H)
	second := o.Run(context.Background(), bars, "BTCUSD", model.MarketCrypto, model.Timeframe1H)

	if len(first.Signals) > 0 && len(second.Signals) != 0 {
		t.Errorf("expected identical re-run at the same clock reading to be fully suppressed by dedup, got %d new signals", len(second.Signals))
	}
}

func TestTraceID_IncrementsPerRun(t *testing.T) {
	o := newTestOrchestrator()
	first := o.traceID("X", model.MarketUS, model.Timeframe1H)
	second := o.traceID("X", model.MarketUS, model.Timeframe1H)
	if first == second {
		t.Errorf("expected distinct trace ids across runs, got %q twice", first)
	}
}
