// Package scheduler periodically re-runs the orchestrator over a growing
// prefix of bars, the cron-driven mode spec.md §1 describes as an
// alternative to driving runs off live bar-close events. It is a reference
// caller of the orchestrator, not part of the analytical core itself.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"chanwatch/internal/model"
	"chanwatch/internal/orchestrator"
)

// KlineSource is the subset of the §6 adapter contract the scheduler needs
// to pull a fresh bar prefix before each run.
type KlineSource interface {
	GetKlines(ctx context.Context, symbol string, market model.Market, timeframe model.Timeframe, limit int) ([]model.Bar, error)
}

// Watch names one (symbol, market, timeframe) the scheduler re-evaluates on
// every tick.
type Watch struct {
	Symbol    string
	Market    model.Market
	Timeframe model.Timeframe
}

// Scheduler owns the cron instance and the orchestrator/feed pair it drives.
type Scheduler struct {
	Cron  *cron.Cron
	Orch  *orchestrator.Orchestrator
	Feed  KlineSource
	Log   *slog.Logger
	Limit int

	// OnOutcome, if set, is called with every non-empty signal batch a run
	// emits — the hook cmd/monitor uses to persist and broadcast signals
	// without the scheduler needing to know about Redis or SQLite.
	OnOutcome func(w Watch, signals []model.Signal)

	watches []Watch
}

// New builds a Scheduler. limit bounds how many of the most recent bars are
// pulled per tick; 0 uses a reasonable default.
func New(orch *orchestrator.Orchestrator, feed KlineSource, logger *slog.Logger, limit int) *Scheduler {
	if limit <= 0 {
		limit = 500
	}
	return &Scheduler{
		Cron:  cron.New(cron.WithSeconds()),
		Orch:  orch,
		Feed:  feed,
		Log:   logger,
		Limit: limit,
	}
}

// Watch registers a (symbol, market, timeframe) to be re-evaluated on every
// tick of the given cron expression. Multiple calls with different
// expressions are allowed; each runs its own set of watches independently.
func (s *Scheduler) Watch(cronExpr string, watches ...Watch) error {
	ws := append([]Watch(nil), watches...)
	_, err := s.Cron.AddFunc(cronExpr, func() { s.runAll(ws) })
	if err != nil {
		return fmt.Errorf("scheduler: register %q: %w", cronExpr, err)
	}
	return nil
}

// Start starts the cron scheduler in the background.
func (s *Scheduler) Start() {
	s.Cron.Start()
	if s.Log != nil {
		s.Log.Info("scheduler started")
	}
}

// Stop stops the cron scheduler, waiting for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	if s.Log != nil {
		s.Log.Info("scheduler stopped")
	}
}

// RunNow executes the given watches immediately, bypassing cron — useful
// for a startup catch-up pass or a manual trigger.
func (s *Scheduler) RunNow(watches ...Watch) {
	s.runAll(watches)
}

func (s *Scheduler) runAll(watches []Watch) {
	for _, w := range watches {
		s.runOne(w)
	}
}

func (s *Scheduler) runOne(w Watch) {
	ctx := context.Background()
	bars, err := s.Feed.GetKlines(ctx, w.Symbol, w.Market, w.Timeframe, s.Limit)
	if err != nil {
		if s.Log != nil {
			s.Log.Error("scheduler: get_klines failed", "symbol", w.Symbol, "timeframe", w.Timeframe, "error", err)
		}
		return
	}

	outcome := s.Orch.Run(ctx, bars, w.Symbol, w.Market, w.Timeframe)
	if outcome.Err != nil {
		if s.Log != nil {
			s.Log.Warn("scheduler: run rejected", "symbol", w.Symbol, "timeframe", w.Timeframe, "error", outcome.Err)
		}
		return
	}
	if len(outcome.Signals) == 0 {
		return
	}
	if s.Log != nil {
		s.Log.Info("scheduler: run emitted signals", "symbol", w.Symbol, "timeframe", w.Timeframe, "count", len(outcome.Signals))
	}
	if s.OnOutcome != nil {
		s.OnOutcome(w, outcome.Signals)
	}
}
