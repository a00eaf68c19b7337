// Package cache is the low-latency side of the reference feed adapter: a
// Redis Streams writer/reader pair plus the circuit breaker and buffered
// writer that shield it from a flaky Redis. Grounded on internal/store/redis,
// generalized from model.Candle/model.TFCandle/model.IndicatorResult to
// model.Bar (both the 1s raw feed and the finalized/forming timeframe bars
// from internal/feed/tfbuilder) and model.Signal — the core recomputes
// indicators fresh from the bar history on every orchestrator run rather
// than streaming them incrementally, so there is no indicator stream left to
// carry; signals take its place as the thing downstream consumers subscribe
// to.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chanwatch/internal/feed/agg"
	"chanwatch/internal/feed/tfbuilder"
	"chanwatch/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// stream1sMaxLen trims the raw 1s bar stream to ~3h of history + buffer.
	stream1sMaxLen   = 12000
	defaultLatestTTL = 30 * time.Minute
	signalStreamLen  = 5000
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes 1s bars, timeframe bars, and signals to Redis.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[cache] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run1s reads 1-second bars from barCh and writes them to Redis.
// Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) Run1s(ctx context.Context, barCh <-chan agg.SymbolBar) {
	for {
		select {
		case <-ctx.Done():
			return
		case sb, ok := <-barCh:
			if !ok {
				return
			}
			w.write1s(ctx, sb)
		}
	}
}

// RunTFBars reads finalized and forming timeframe bars and writes them to
// Redis. A forming bar is pubsub-only (no XADD, no SET); a finalized bar
// gets the full XADD + SET + PUBLISH treatment.
// Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) RunTFBars(ctx context.Context, barCh <-chan tfbuilder.SymbolBar) {
	for {
		select {
		case <-ctx.Done():
			return
		case sb, ok := <-barCh:
			if !ok {
				return
			}
			w.writeTFBar(ctx, sb)
		}
	}
}

// WriteSignalBatch writes every signal a single orchestrator run emitted to
// Redis in one pipeline: XADD to the symbol's durable stream, SET the latest
// value per kind, and PUBLISH for live subscribers.
func (w *Writer) WriteSignalBatch(ctx context.Context, signals []model.Signal) {
	if len(signals) == 0 {
		return
	}

	pipe := w.client.Pipeline()
	for _, sig := range signals {
		jsonData, err := json.Marshal(sig)
		if err != nil {
			log.Printf("[cache] marshal signal %s: %v", sig.ID, err)
			continue
		}

		streamKey := "signal:" + sig.Symbol
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: signalStreamLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})

		latestKey := "signal:latest:" + sig.Symbol + ":" + string(sig.Kind)
		pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)

		pubsubCh := "pub:signal:" + sig.Symbol
		pipe.Publish(ctx, pubsubCh, jsonData)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[cache] signal batch pipeline error (%d signals): %v", len(signals), err)
	}
}

// write1s performs pipelined writes for a 1s bar.
func (w *Writer) write1s(ctx context.Context, sb agg.SymbolBar) {
	jsonData, err := json.Marshal(sb.Bar)
	if err != nil {
		log.Printf("[cache] marshal 1s bar for %s: %v", sb.Symbol, err)
		return
	}

	latestKey := "bar:1s:latest:" + sb.Symbol
	streamKey := "bar:1s:" + sb.Symbol
	pubsubCh := "pub:bar:1s:" + sb.Symbol

	pipe := w.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: stream1sMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[cache] 1s bar pipeline error for %s: %v", sb.Symbol, err)
	}
}

// writeTFBar publishes a timeframe bar. Forming bars go out over pubsub only
// so live subscribers see the bar build up tick by tick; finalized bars get
// durable storage too.
func (w *Writer) writeTFBar(ctx context.Context, sb tfbuilder.SymbolBar) {
	jsonData, err := json.Marshal(sb)
	if err != nil {
		log.Printf("[cache] marshal tf bar for %s %s: %v", sb.Symbol, sb.Timeframe, err)
		return
	}

	pubsubCh := "pub:bar:" + string(sb.Timeframe) + ":" + sb.Symbol

	if sb.Forming {
		w.client.Publish(ctx, pubsubCh, jsonData)
		return
	}

	streamKey := "bar:" + string(sb.Timeframe) + ":" + sb.Symbol
	latestKey := "bar:" + string(sb.Timeframe) + ":latest:" + sb.Symbol

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: tfMaxLen(sb.Timeframe),
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[cache] tf bar pipeline error for %s %s: %v", sb.Symbol, sb.Timeframe, err)
	}
}

// tfMaxLen caps each intraday timeframe's stream at roughly a week of bars,
// and the 1D stream at 90 bars.
func tfMaxLen(tf model.Timeframe) int64 {
	switch tf {
	case model.Timeframe5m:
		return 2016
	case model.Timeframe15m:
		return 672
	case model.Timeframe1H:
		return 168
	case model.Timeframe4H:
		return 42
	case model.Timeframe1D:
		return 90
	default:
		return 500
	}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
