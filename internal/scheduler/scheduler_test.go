package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"chanwatch/internal/dedupe"
	"chanwatch/internal/model"
	"chanwatch/internal/orchestrator"
	"chanwatch/internal/store"
)

// fakeFeed returns canned bars per symbol, or an error for symbols in errOn.
type fakeFeed struct {
	bars  []model.Bar
	errOn map[string]bool
	calls []Watch
}

func (f *fakeFeed) GetKlines(_ context.Context, symbol string, market model.Market, tf model.Timeframe, limit int) ([]model.Bar, error) {
	f.calls = append(f.calls, Watch{Symbol: symbol, Market: market, Timeframe: tf})
	if f.errOn[symbol] {
		return nil, errors.New("feed unavailable")
	}
	return f.bars, nil
}

func sampleBars(n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		price := 100.0 + float64(i)
		bars[i] = model.Bar{
			TimeSec: int64(i * 3600),
			Open:    price,
			High:    price + 1,
			Low:     price - 1,
			Close:   price,
		}
	}
	return bars
}

func newTestOrchestrator() *orchestrator.Orchestrator {
	dedup := dedupe.New(4 * time.Hour)
	st := store.New(500, 5, 8*time.Second)
	return orchestrator.New(dedup, st, nil, nil, nil, nil)
}

func TestRunNow_PullsKlinesPerWatch(t *testing.T) {
	feed := &fakeFeed{bars: sampleBars(10)}
	s := New(newTestOrchestrator(), feed, nil, 0)

	watches := []Watch{
		{Symbol: "BTCUSD", Market: model.MarketCrypto, Timeframe: model.Timeframe1H},
		{Symbol: "ETHUSD", Market: model.MarketCrypto, Timeframe: model.Timeframe4H},
	}
	s.RunNow(watches...)

	if len(feed.calls) != 2 {
		t.Fatalf("expected 2 GetKlines calls, got %d", len(feed.calls))
	}
	if feed.calls[0].Symbol != "BTCUSD" || feed.calls[1].Symbol != "ETHUSD" {
		t.Errorf("watches ran out of order: %+v", feed.calls)
	}
}

func TestRunNow_FeedErrorSkipsWatchWithoutPanic(t *testing.T) {
	feed := &fakeFeed{bars: sampleBars(10), errOn: map[string]bool{"BADSYM": true}}
	s := New(newTestOrchestrator(), feed, nil, 0)

	var gotOutcome bool
	s.OnOutcome = func(w Watch, signals []model.Signal) { gotOutcome = true }

	s.RunNow(Watch{Symbol: "BADSYM", Market: model.MarketCrypto, Timeframe: model.Timeframe1H})

	if gotOutcome {
		t.Error("OnOutcome should not fire when the feed call fails")
	}
}

func TestRunNow_OnOutcomeSkippedWhenNoSignals(t *testing.T) {
	// Six steadily rising bars are too few for any detector to fire and form
	// no fractals, so the run emits no signals.
	feed := &fakeFeed{bars: sampleBars(6)}
	s := New(newTestOrchestrator(), feed, nil, 0)

	called := false
	s.OnOutcome = func(w Watch, signals []model.Signal) { called = true }

	s.RunNow(Watch{Symbol: "BTCUSD", Market: model.MarketCrypto, Timeframe: model.Timeframe1H})

	if called {
		t.Error("OnOutcome should only fire for non-empty signal batches")
	}
}

func TestNew_DefaultsLimitWhenNonPositive(t *testing.T) {
	s := New(newTestOrchestrator(), &fakeFeed{}, nil, 0)
	if s.Limit != 500 {
		t.Errorf("expected default limit 500, got %d", s.Limit)
	}

	s2 := New(newTestOrchestrator(), &fakeFeed{}, nil, 42)
	if s2.Limit != 42 {
		t.Errorf("expected explicit limit 42, got %d", s2.Limit)
	}
}

func TestWatch_RegistersCronJob(t *testing.T) {
	s := New(newTestOrchestrator(), &fakeFeed{bars: sampleBars(10)}, nil, 0)
	if err := s.Watch("*/5 * * * * *", Watch{Symbol: "BTCUSD", Market: model.MarketCrypto, Timeframe: model.Timeframe1H}); err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}
	if len(s.Cron.Entries()) != 1 {
		t.Errorf("expected 1 cron entry, got %d", len(s.Cron.Entries()))
	}
}

func TestWatch_RejectsInvalidCronExpr(t *testing.T) {
	s := New(newTestOrchestrator(), &fakeFeed{}, nil, 0)
	if err := s.Watch("not a cron expr"); err == nil {
		t.Error("expected an error for an invalid cron expression")
	}
}
