// Package bus fans a single stream of finalized timeframe bars out to N
// subscribers, dropping for any subscriber whose channel is full rather
// than blocking the pipeline on a slow consumer. Grounded on
// internal/marketdata/bus's FanOut, generalized from model.Candle to
// tfbuilder.SymbolBar.
package bus

import (
	"context"
	"log"
	"sync"

	"chanwatch/internal/feed/tfbuilder"
)

// FanOut broadcasts tfbuilder.SymbolBar values from one input channel to
// every subscriber's output channel.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan tfbuilder.SymbolBar
	bufSize int

	// OnDrop is called when a bar is dropped for a subscriber. subscriberIdx
	// is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new output channel.
func (f *FanOut) Subscribe() <-chan tfbuilder.SymbolBar {
	ch := make(chan tfbuilder.SymbolBar, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Run reads from input and fans out to every subscriber. Blocks until ctx
// is cancelled or input is closed.
func (f *FanOut) Run(ctx context.Context, input <-chan tfbuilder.SymbolBar) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case sb, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- sb:
				default:
					if f.OnDrop != nil {
						f.OnDrop(i)
					} else {
						log.Printf("[feed/bus] output channel %d full, dropping bar %s", i, sb.Symbol)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat reports a subscriber channel's current fill level.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns (length, capacity) for each subscriber channel.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
