// Package dedupe implements the signal deduplication cooldown (§4.4): a
// mutex-guarded keyed cache of (symbol, timeframe, kind) -> last emission
// wall time, enforcing a minimum gap between successive emissions of the
// same key. The shape mirrors the teacher's circuit breaker — a small,
// mutex-guarded, time-keyed state machine checked and updated under one
// lock — but there is no open/closed state here, only a timestamp per key.
package dedupe

import (
	"sync"
	"time"

	"chanwatch/internal/model"
)

// DefaultWindow is the spec's default cooldown (§4.4, §6).
const DefaultWindow = 5 * time.Minute

// Key identifies a cooldown entry.
type Key struct {
	Symbol    string
	Timeframe model.Timeframe
	Kind      model.SignalKind
}

// Deduper tracks the last emission time per Key. It is safe for concurrent
// use; entries live for the process lifetime and are never evicted, since
// the key space is bounded by (symbol count * timeframe count * kind count).
type Deduper struct {
	mu       sync.Mutex
	window   time.Duration
	lastEmit map[Key]int64 // wall-clock ms
}

// New creates a Deduper with the given cooldown window.
func New(window time.Duration) *Deduper {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Deduper{
		window:   window,
		lastEmit: make(map[Key]int64),
	}
}

// ShouldEmit reports whether a signal for key may be emitted at nowMS: true
// iff no entry exists yet, or the gap since the last emission is at least
// the cooldown window. It does not record the emission — call Record after
// deciding to actually emit.
func (d *Deduper) ShouldEmit(key Key, nowMS int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lastEmit[key]
	if !ok {
		return true
	}
	return nowMS-last >= d.window.Milliseconds()
}

// Record stamps key as emitted at nowMS.
func (d *Deduper) Record(key Key, nowMS int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastEmit[key] = nowMS
}

// Filter applies ShouldEmit+Record atomically per signal, returning only
// the signals that pass the cooldown gate, in the caller-provided order.
// This is the single entry point detectors/the orchestrator should use so
// the check-then-update never races across concurrent invocations.
func (d *Deduper) Filter(signals []model.Signal) []model.Signal {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]model.Signal, 0, len(signals))
	for _, s := range signals {
		key := Key{Symbol: s.Symbol, Timeframe: s.Timeframe, Kind: s.Kind}
		last, ok := d.lastEmit[key]
		if ok && s.TimeMS-last < d.window.Milliseconds() {
			continue
		}
		d.lastEmit[key] = s.TimeMS
		out = append(out, s)
	}
	return out
}
