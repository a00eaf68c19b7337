// Package tfbuilder resamples 1-second bars into the fixed set of
// model.Timeframe granularities the core reasons about. Grounded on
// internal/marketdata/tfbuilder's incremental, O(1)-per-candle resampler,
// generalized from arbitrary integer-second TFs to the closed Timeframe
// enum and from model.Candle/TFCandle to model.Bar.
package tfbuilder

import (
	"context"
	"log"
	"time"

	"chanwatch/internal/feed/agg"
	"chanwatch/internal/model"
)

// seconds maps each supported timeframe to its bucket width.
var seconds = map[model.Timeframe]int64{
	model.Timeframe5m:  5 * 60,
	model.Timeframe15m: 15 * 60,
	model.Timeframe1H:  60 * 60,
	model.Timeframe4H:  4 * 60 * 60,
	model.Timeframe1D:  24 * 60 * 60,
}

// SymbolBar pairs a finalized timeframe bar with its symbol and timeframe.
type SymbolBar struct {
	Symbol    string
	Timeframe model.Timeframe
	Bar       model.Bar
	Forming   bool
}

type tfState struct {
	bucket  int64
	bar     model.Bar
	started bool
}

// Builder resamples 1s bars into every timeframe in TFs. Designed to run in
// a single goroutine (single consumer per instance).
type Builder struct {
	tfs []model.Timeframe

	// states[i][symbol] is the forming bar for tfs[i].
	states []map[string]*tfState

	// StaleTolerance rejects bars whose bucket is behind the currently
	// forming bucket by more than this much. Default 2s; 0 disables.
	StaleTolerance time.Duration

	OnBar        func(SymbolBar)
	OnStaleInput func()
}

// New creates a Builder for the given timeframes.
func New(tfs []model.Timeframe) *Builder {
	states := make([]map[string]*tfState, len(tfs))
	for i := range states {
		states[i] = make(map[string]*tfState, 64)
	}
	return &Builder{
		tfs:            tfs,
		states:         states,
		StaleTolerance: 2 * time.Second,
	}
}

// Run consumes 1s bars from barCh, resamples them into every timeframe, and
// sends finalized/forming bars to outCh. Blocks until ctx is cancelled.
func (b *Builder) Run(ctx context.Context, barCh <-chan agg.SymbolBar, outCh chan<- SymbolBar) {
	for {
		select {
		case <-ctx.Done():
			b.flushAll(outCh)
			return
		case sb, ok := <-barCh:
			if !ok {
				b.flushAll(outCh)
				return
			}
			b.process(sb, outCh)
		}
	}
}

// process handles one 1s bar against every enabled timeframe. Hot path —
// O(1) per timeframe.
func (b *Builder) process(sb agg.SymbolBar, outCh chan<- SymbolBar) {
	ts := sb.Bar.TimeSec

	for i, tf := range b.tfs {
		width := seconds[tf]
		bucket := ts - (ts % width)

		st, exists := b.states[i][sb.Symbol]

		if b.StaleTolerance > 0 && exists && bucket < st.bucket {
			lag := time.Duration(st.bucket-bucket) * time.Second
			if lag > b.StaleTolerance {
				if b.OnStaleInput != nil {
					b.OnStaleInput()
				}
				continue
			}
		}

		if exists && bucket > st.bucket {
			st.bar.TimeSec = st.bucket
			emit(outCh, SymbolBar{Symbol: sb.Symbol, Timeframe: tf, Bar: st.bar, Forming: false})
			if b.OnBar != nil {
				b.OnBar(SymbolBar{Symbol: sb.Symbol, Timeframe: tf, Bar: st.bar, Forming: false})
			}
			exists = false
		}

		if !exists {
			newState := &tfState{
				bucket:  bucket,
				started: true,
				bar: model.Bar{
					TimeSec: bucket,
					Open:    sb.Bar.Open,
					High:    sb.Bar.High,
					Low:     sb.Bar.Low,
					Close:   sb.Bar.Close,
				},
			}
			b.states[i][sb.Symbol] = newState
			emit(outCh, SymbolBar{Symbol: sb.Symbol, Timeframe: tf, Bar: newState.bar, Forming: true})
			continue
		}

		fb := &st.bar
		if sb.Bar.High > fb.High {
			fb.High = sb.Bar.High
		}
		if sb.Bar.Low < fb.Low {
			fb.Low = sb.Bar.Low
		}
		fb.Close = sb.Bar.Close

		snap := *fb
		emit(outCh, SymbolBar{Symbol: sb.Symbol, Timeframe: tf, Bar: snap, Forming: true})
	}
}

func (b *Builder) flushAll(outCh chan<- SymbolBar) {
	for i, tf := range b.tfs {
		for symbol, st := range b.states[i] {
			if st.started {
				st.bar.TimeSec = st.bucket
				emit(outCh, SymbolBar{Symbol: symbol, Timeframe: tf, Bar: st.bar, Forming: false})
			}
			delete(b.states[i], symbol)
		}
	}
}

func emit(outCh chan<- SymbolBar, sb SymbolBar) {
	select {
	case outCh <- sb:
	default:
		log.Printf("[feed/tfbuilder] outCh full, dropping bar %s tf=%s ts=%d", sb.Symbol, sb.Timeframe, sb.Bar.TimeSec)
	}
}

// Timeframes returns the currently enabled timeframe set.
func (b *Builder) Timeframes() []model.Timeframe {
	return b.tfs
}

// Process1 runs a single 1s bar against every timeframe inline, bypassing
// channel overhead for callers that already hold the bar in hand.
func (b *Builder) Process1(sb agg.SymbolBar, outCh chan<- SymbolBar) {
	b.process(sb, outCh)
}
