// Package feed is the reference, non-core implementation of the §6 adapter
// contract: GetKlines/GetQuote backed by the ingest → agg → tfbuilder →
// cache/history pipeline in its subpackages. The orchestrator never imports
// this package — it exists so the documented adapter boundary is exercised
// end-to-end rather than only described in prose.
package feed

import (
	"context"
	"fmt"

	"chanwatch/internal/feed/cache"
	"chanwatch/internal/feed/history"
	"chanwatch/internal/model"
)

// Adapter implements the orchestrator's (symbol, market, timeframe) →
// []model.Bar contract and the get_quote call against the reference feed's
// durable history store and live bar cache respectively.
type Adapter struct {
	History *history.Reader
	Cache   *cache.Reader
}

// New builds an Adapter over an already-open history reader and cache
// reader. Either may be nil; GetKlines requires History, GetQuote requires
// Cache.
func New(hist *history.Reader, c *cache.Reader) *Adapter {
	return &Adapter{History: hist, Cache: c}
}

// GetKlines returns up to limit of the most recent bars backfilled for
// (symbol, timeframe), oldest-first, per spec.md §6. market is accepted for
// interface symmetry with GetQuote; the reference adapter's bar history is
// not currently partitioned by market.
func (a *Adapter) GetKlines(ctx context.Context, symbol string, market model.Market, timeframe model.Timeframe, limit int) ([]model.Bar, error) {
	if a.History == nil {
		return nil, fmt.Errorf("feed: get klines %s %s: no history reader configured", symbol, timeframe)
	}
	bars, err := a.History.ReadBars(symbol, timeframe, 0)
	if err != nil {
		return nil, fmt.Errorf("feed: get klines %s %s: %w", symbol, timeframe, err)
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// GetQuote returns the latest traded price for symbol, derived from the
// most recent cached 1-second bar's close.
func (a *Adapter) GetQuote(ctx context.Context, symbol string, market model.Market) (model.Quote, error) {
	if a.Cache == nil {
		return model.Quote{}, fmt.Errorf("feed: get quote %s: no cache reader configured", symbol)
	}
	bar, err := a.Cache.GetLatest1sBar(ctx, symbol)
	if err != nil {
		return model.Quote{}, fmt.Errorf("feed: get quote %s: %w", symbol, err)
	}
	return model.Quote{Symbol: symbol, Price: bar.Close, TimeMS: bar.TimeSec * 1000}, nil
}
