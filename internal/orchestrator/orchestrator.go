// Package orchestrator wires indicators, the Chanlun pipeline, detectors,
// deduplication, and the signal store into the single entry point described
// by §4.6: given (bars, symbol, market, timeframe), run everything and post
// the result to the store. The orchestrator itself is stateless between
// runs — only the deduper and store it was built with carry state forward.
package orchestrator

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"chanwatch/internal/chanlun"
	"chanwatch/internal/dedupe"
	"chanwatch/internal/kernel"
	"chanwatch/internal/logger"
	"chanwatch/internal/metrics"
	"chanwatch/internal/model"
	"chanwatch/internal/signal"
	"chanwatch/internal/store"
)

// MinBars is the fewest bars get_klines must return before a run proceeds;
// fewer is treated as InsufficientData, not an error (§6, §7).
const MinBars = 5

// ParamsLookup resolves the ChanlunParams for a market, falling back to the
// spec's default when the market has no override configured.
type ParamsLookup func(market model.Market) model.ChanlunParams

// Clock abstracts wall-clock time so tests can control Signal.TimeMS.
type Clock func() int64

// Orchestrator owns the long-lived deduper and store and runs the pipeline
// against them. Safe for concurrent Run calls across different
// (symbol, market, timeframe) — the deduper and store each guard their own
// state internally.
type Orchestrator struct {
	Dedup   *dedupe.Deduper
	Store   *store.Store
	Params  ParamsLookup
	Now     Clock
	Log     *slog.Logger
	Metrics *metrics.Metrics

	runSeq atomic.Int64
}

// New constructs an Orchestrator. paramsLookup and clock may be nil to use
// model.DefaultChanlunParams and time-based defaults respectively; logger
// and metricsReg may be nil to disable trace logging / metric emission.
func New(dedup *dedupe.Deduper, signalStore *store.Store, paramsLookup ParamsLookup, clock Clock, logger *slog.Logger, metricsReg *metrics.Metrics) *Orchestrator {
	if paramsLookup == nil {
		paramsLookup = func(model.Market) model.ChanlunParams { return model.DefaultChanlunParams() }
	}
	return &Orchestrator{Dedup: dedup, Store: signalStore, Params: paramsLookup, Now: clock, Log: logger, Metrics: metricsReg}
}

// Outcome carries either the structural results and emitted signals of a
// successful run, or a typed error (§7's RunOutcome). A failed run leaves
// the store and deduper untouched.
type Outcome struct {
	Chanlun chanlun.Result
	Signals []model.Signal
	Err     error
}

// Run executes one pass of the pipeline: indicators, Chanlun structure,
// detectors, third-buy conversion, dedup, then a single store.AddBatch of
// the survivors (§4.6). bars must be oldest-first per the adapter contract;
// Run does not re-sort them.
func (o *Orchestrator) Run(ctx context.Context, bars []model.Bar, symbol string, market model.Market, timeframe model.Timeframe) Outcome {
	start := time.Now()
	if o.Metrics != nil {
		o.Metrics.RunsTotal.Inc()
		defer func() { o.Metrics.RunDuration.Observe(time.Since(start).Seconds()) }()
	}

	if len(bars) < MinBars {
		return Outcome{} // InsufficientData: empty outcome, not an error (§7)
	}
	if err := model.ValidateBars(bars); err != nil {
		o.countError("malformed_bar")
		return Outcome{Err: err}
	}

	params := o.Params(market)
	if err := params.Validate(); err != nil {
		o.countError("config_error")
		return Outcome{Err: err}
	}

	traceID := o.traceID(symbol, market, timeframe)
	nowMS := o.nowMS()

	if ctx.Err() != nil {
		return Outcome{}
	}

	atr, macd, rsi, bollinger := o.timedIndicators(bars)

	if ctx.Err() != nil {
		return Outcome{}
	}

	structural := o.timedChanlun(bars, atr, params, symbol, market, timeframe)

	if ctx.Err() != nil {
		return Outcome{}
	}

	detectorInput := signal.Input{
		Bars:      bars,
		Symbol:    symbol,
		Market:    market,
		Timeframe: timeframe,
		NowMS:     nowMS,
		MACD:      macd,
		RSI:       rsi,
		Bollinger: bollinger,
		ATR:       atr,
	}
	signals := o.timedDetectors(detectorInput, structural, nowMS)

	if ctx.Err() != nil {
		return Outcome{}
	}

	survivors := o.timedDedupe(signals)
	o.Store.AddBatch(survivors)

	o.recordOutcome(structural, survivors, len(signals)-len(survivors))

	if o.Log != nil {
		o.Log.Info("orchestrator run complete",
			"trace_id", traceID,
			"symbol", symbol,
			"market", market,
			"timeframe", timeframe,
			"bars", len(bars),
			"bis", len(structural.Bis),
			"zhongshus", len(structural.Zhongshus),
			"third_buys", len(structural.ThirdBuys),
			"signals_emitted", len(survivors),
			"signals_suppressed", len(signals)-len(survivors),
		)
	}

	return Outcome{Chanlun: structural, Signals: survivors}
}

func (o *Orchestrator) timedIndicators(bars []model.Bar) ([]float64, []kernel.MACDPoint, []float64, kernel.BollingerBands) {
	defer o.timeStage("indicators", time.Now())
	atr := kernel.ATR(bars, chanlun.DefaultATRPeriod)
	macd := kernel.MACD(bars, 12, 26, 9)
	rsi := kernel.RSI(bars, 14)
	bollinger := kernel.Bollinger(bars, 20, 2)
	return atr, macd, rsi, bollinger
}

func (o *Orchestrator) timedChanlun(bars []model.Bar, atr []float64, params model.ChanlunParams, symbol string, market model.Market, timeframe model.Timeframe) chanlun.Result {
	return chanlun.Run(bars, atr, params, symbol, market, timeframe, o.timeChanlunStage)
}

func (o *Orchestrator) timeChanlunStage(stage string, d time.Duration) {
	if o.Metrics != nil {
		o.Metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (o *Orchestrator) timedDetectors(in signal.Input, structural chanlun.Result, nowMS int64) []model.Signal {
	defer o.timeStage("detectors", time.Now())
	signals := signal.Run(in)
	signals = append(signals, signal.ThirdBuysToSignals(structural.ThirdBuys, nowMS)...)
	return signals
}

func (o *Orchestrator) timedDedupe(signals []model.Signal) []model.Signal {
	defer o.timeStage("dedupe", time.Now())
	return o.Dedup.Filter(signals)
}

func (o *Orchestrator) timeStage(stage string, start time.Time) {
	if o.Metrics != nil {
		o.Metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (o *Orchestrator) countError(kind string) {
	if o.Metrics != nil {
		o.Metrics.RunErrorsTotal.WithLabelValues(kind).Inc()
	}
}

func (o *Orchestrator) recordOutcome(structural chanlun.Result, survivors []model.Signal, suppressed int) {
	if o.Metrics == nil {
		return
	}
	for _, s := range survivors {
		o.Metrics.SignalsEmittedTotal.WithLabelValues(string(s.Kind)).Inc()
	}
	if suppressed > 0 {
		o.Metrics.SignalsSuppressedTotal.Add(float64(suppressed))
	}
	for _, tb := range structural.ThirdBuys {
		if tb.Status == model.ThirdBuyConfirmed {
			o.Metrics.ThirdBuyConfirmed.Inc()
		} else {
			o.Metrics.ThirdBuyCandidates.Inc()
		}
	}
	o.Metrics.StoreSize.Set(float64(len(o.Store.Snapshot())))
	o.Metrics.ToastActive.Set(float64(len(o.Store.Toasts())))
}

func (o *Orchestrator) traceID(symbol string, market model.Market, timeframe model.Timeframe) string {
	seq := o.runSeq.Add(1)
	return logger.GenerateTraceID(symbol, string(market), string(timeframe), seq)
}

func (o *Orchestrator) nowMS() int64 {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UnixMilli()
}
