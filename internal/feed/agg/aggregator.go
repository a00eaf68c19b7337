// Package agg builds 1-second model.Bar candles from a stream of
// model.Quote ticks. Grounded on internal/marketdata/agg's single-goroutine,
// bucket-rollover aggregator, generalized from paise-int64/token/exchange
// keys to float64 prices keyed by symbol.
package agg

import (
	"context"
	"log"
	"sync"
	"time"

	"chanwatch/internal/model"
)

type barState struct {
	bucket int64 // Unix second of this bucket
	bar    model.Bar
}

// Aggregator builds 1-second OHLC bars from a stream of quotes. Runs in a
// single goroutine and emits finalized bars when the second rolls over.
type Aggregator struct {
	mu     sync.Mutex
	states map[string]*barState // key = symbol

	flushInterval time.Duration

	OnDroppedQuote func()
}

// New creates a new Aggregator.
func New() *Aggregator {
	return &Aggregator{
		states:        make(map[string]*barState),
		flushInterval: 100 * time.Millisecond,
	}
}

// Run consumes quotes from quoteCh, aggregates into 1s bars, and sends
// finalized bars for every symbol to barCh, each tagged with its symbol.
// Blocks until ctx is cancelled or quoteCh is closed.
func (a *Aggregator) Run(ctx context.Context, quoteCh <-chan model.Quote, barCh chan<- SymbolBar) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flushAll(barCh)
			return

		case q, ok := <-quoteCh:
			if !ok {
				a.flushAll(barCh)
				return
			}
			a.processQuote(q, barCh)

		case <-ticker.C:
			a.flushOld(barCh)
		}
	}
}

// SymbolBar pairs a finalized bar with the symbol it belongs to, since
// model.Bar itself carries no symbol field (§3: Bar is venue-agnostic).
type SymbolBar struct {
	Symbol string
	Bar    model.Bar
}

func (a *Aggregator) processQuote(q model.Quote, barCh chan<- SymbolBar) {
	bucket := q.TimeMS / 1000

	a.mu.Lock()
	defer a.mu.Unlock()

	state, exists := a.states[q.Symbol]

	if exists && bucket < state.bucket {
		dropped := a.OnDroppedQuote
		a.mu.Unlock()
		if dropped != nil {
			dropped()
		}
		a.mu.Lock()
		return
	}

	if exists && bucket > state.bucket {
		a.emit(q.Symbol, state, barCh)
		delete(a.states, q.Symbol)
		exists = false
	}

	if !exists {
		a.states[q.Symbol] = &barState{
			bucket: bucket,
			bar: model.Bar{
				TimeSec: bucket,
				Open:    q.Price,
				High:    q.Price,
				Low:     q.Price,
				Close:   q.Price,
			},
		}
		return
	}

	b := &state.bar
	if q.Price > b.High {
		b.High = q.Price
	}
	if q.Price < b.Low {
		b.Low = q.Price
	}
	b.Close = q.Price
}

func (a *Aggregator) flushOld(barCh chan<- SymbolBar) {
	now := time.Now().Unix()

	a.mu.Lock()
	defer a.mu.Unlock()

	for symbol, state := range a.states {
		if state.bucket < now {
			a.emit(symbol, state, barCh)
			delete(a.states, symbol)
		}
	}
}

func (a *Aggregator) flushAll(barCh chan<- SymbolBar) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for symbol, state := range a.states {
		a.emit(symbol, state, barCh)
		delete(a.states, symbol)
	}
}

func (a *Aggregator) emit(symbol string, state *barState, barCh chan<- SymbolBar) {
	select {
	case barCh <- SymbolBar{Symbol: symbol, Bar: state.bar}:
	default:
		log.Printf("[feed/agg] barCh full, dropping bar %s ts=%d", symbol, state.bar.TimeSec)
	}
}
