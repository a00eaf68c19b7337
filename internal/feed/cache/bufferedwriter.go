package cache

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"chanwatch/internal/feed/agg"
	"chanwatch/internal/feed/tfbuilder"
	"chanwatch/internal/model"
)

// pendingWrite represents a write that was buffered during circuit-open state.
type pendingWrite struct {
	WriteType string // "bar_1s", "tf_bar", "signals"
	Data      []byte // JSON-encoded payload
}

// BufferedWriter wraps a Redis Writer with a circuit breaker.
// During circuit-open state, writes are buffered locally and flushed
// when the circuit closes again.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int // max buffered writes before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteTFBar writes a timeframe bar through the circuit breaker. If the
// circuit is open, the write is buffered locally rather than lost.
func (bw *BufferedWriter) WriteTFBar(sb tfbuilder.SymbolBar) error {
	err := bw.cb.Execute(func() error {
		bw.writer.writeTFBar(bw.ctx, sb)
		return nil // writeTFBar logs errors internally
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("tf_bar", sb)
		return nil
	}
	return err
}

// WriteBar1s writes a 1s bar through the circuit breaker.
func (bw *BufferedWriter) WriteBar1s(sb agg.SymbolBar) error {
	err := bw.cb.Execute(func() error {
		bw.writer.write1s(bw.ctx, sb)
		return nil
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("bar_1s", sb)
		return nil
	}
	return err
}

// WriteSignals writes one orchestrator run's signals through the circuit
// breaker, as a single buffered unit if the circuit is open.
func (bw *BufferedWriter) WriteSignals(signals []model.Signal) error {
	err := bw.cb.Execute(func() error {
		bw.writer.WriteSignalBatch(bw.ctx, signals)
		return nil
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("signals", signals)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(writeType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[buffered-writer] marshal error: %v", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full — drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pendingWrite{WriteType: writeType, Data: data})

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		switch pw.WriteType {
		case "tf_bar":
			var sb tfbuilder.SymbolBar
			if json.Unmarshal(pw.Data, &sb) == nil {
				bw.writer.writeTFBar(bw.ctx, sb)
			}
		case "bar_1s":
			var sb agg.SymbolBar
			if json.Unmarshal(pw.Data, &sb) == nil {
				bw.writer.write1s(bw.ctx, sb)
			}
		case "signals":
			var signals []model.Signal
			if json.Unmarshal(pw.Data, &signals) == nil {
				bw.writer.WriteSignalBatch(bw.ctx, signals)
			}
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered writes", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the underlying Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
