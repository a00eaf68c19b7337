// cmd/monitor is the single process that wires the analytical core to its
// reference adapters: the market-data feed, the Redis/SQLite persistence
// pair, the broadcast gateway, and the cron scheduler. Grounded on the
// teacher's cmd/mdengine's pipeline-wiring shape (channels, fan-out,
// graceful shutdown via signal.Notify), generalized from a single
// broker-specific candle pipeline to the multi-component monitor SPEC_FULL
// describes.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chanwatch/internal/config"
	"chanwatch/internal/dedupe"
	"chanwatch/internal/feed"
	"chanwatch/internal/feed/agg"
	"chanwatch/internal/feed/bus"
	"chanwatch/internal/feed/cache"
	"chanwatch/internal/feed/history"
	"chanwatch/internal/feed/ingest"
	"chanwatch/internal/feed/tfbuilder"
	"chanwatch/internal/gateway"
	"chanwatch/internal/logger"
	"chanwatch/internal/metrics"
	"chanwatch/internal/model"
	"chanwatch/internal/orchestrator"
	"chanwatch/internal/scheduler"
	"chanwatch/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Init("chanwatch-monitor", slog.LevelInfo)
	log.Info("starting", "symbols", cfg.Symbols, "market", cfg.Market, "timeframes", cfg.Timeframes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()
	log.Info("metrics listening", "addr", cfg.MetricsAddr)

	if dir := os.Getenv("SQLITE_DIR"); dir != "" {
		os.MkdirAll(dir, 0o755)
	} else {
		os.MkdirAll("data", 0o755)
	}

	histWriter, err := history.New(history.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Error("sqlite init failed", "error", err)
		os.Exit(1)
	}
	defer histWriter.Close()

	histReader, err := history.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Error("sqlite reader init failed", "error", err)
		os.Exit(1)
	}
	defer histReader.Close()

	cacheWriter, err := cache.New(cache.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		log.Error("redis writer init failed", "error", err)
		os.Exit(1)
	}
	defer cacheWriter.Close()

	cacheCB := cache.NewCircuitBreaker(5, 10*time.Second)
	cacheCB.OnStateChange = func(from, to cache.State) {
		log.Warn("redis circuit breaker state change", "from", from, "to", to)
	}
	bufCache := cache.NewBufferedWriter(ctx, cacheWriter, cacheCB, 10000)
	bufCache.OnBuffer = func() { prom.RedisWritesBuffered.Inc() }

	cacheReader, err := cache.NewReader(cache.ReaderConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Error("redis reader init failed", "error", err)
		os.Exit(1)
	}
	defer cacheReader.Close()

	feedAdapter := feed.New(histReader, cacheReader)

	// ---- Analytical core ----
	dedup := dedupe.New(cfg.DedupeWindow)
	signalStore := store.New(cfg.StoreCapacity, cfg.ToastCapacity, cfg.ToastLifetime)
	orch := orchestrator.New(dedup, signalStore, cfg.ParamsLookup(), nil, log, prom)

	publish := func(signals []model.Signal) {
		if len(signals) == 0 {
			return
		}
		if err := bufCache.WriteSignals(signals); err != nil {
			log.Error("signal cache write failed", "error", err)
		}
		if err := histWriter.WriteSignalBatch(signals); err != nil {
			log.Error("signal persist failed", "error", err)
		}
	}

	// ---- Feed pipeline: quotes -> 1s bars -> timeframe bars ----
	quoteCh := make(chan model.Quote, 10000)
	bar1sCh := make(chan agg.SymbolBar, 5000)

	feedIngest, err := ingest.New(ingest.Config{URL: cfg.FeedWSURL})
	if err != nil {
		log.Error("feed ingest init failed", "error", err)
		os.Exit(1)
	}
	feedIngest.OnReconnect = func() { prom.WSReconnects.Inc() }
	go func() {
		if err := feedIngest.Start(ctx, quoteCh); err != nil {
			log.Error("feed ingest stopped", "error", err)
		}
	}()
	health.SetFeedConnected(true)

	aggregator := agg.New()
	aggregator.OnDroppedQuote = func() { log.Warn("dropped quote, aggregator channel full") }
	go aggregator.Run(ctx, quoteCh, bar1sCh)

	// 1s bars have two consumers (the cache and the timeframe builder); agg
	// has no fan-out of its own (bus.FanOut is typed for tfbuilder.SymbolBar
	// only), so duplicate the stream by hand.
	cacheBar1sCh := make(chan agg.SymbolBar, 5000)
	tfInputCh := make(chan agg.SymbolBar, 5000)
	go func() {
		for sb := range bar1sCh {
			select {
			case cacheBar1sCh <- sb:
			default:
			}
			select {
			case tfInputCh <- sb:
			default:
			}
		}
		close(cacheBar1sCh)
		close(tfInputCh)
	}()
	go func() {
		for sb := range cacheBar1sCh {
			bufCache.WriteBar1s(sb)
		}
	}()

	tfOutCh := make(chan tfbuilder.SymbolBar, 5000)
	tfBuilder := tfbuilder.New(cfg.Timeframes)
	tfBuilder.OnStaleInput = func() { log.Warn("stale 1s bar rejected by tfbuilder") }
	go tfBuilder.Run(ctx, tfInputCh, tfOutCh)

	tfBus := bus.New(2000)
	historyTFCh := tfBus.Subscribe()
	cacheTFCh := tfBus.Subscribe()
	triggerTFCh := tfBus.Subscribe()
	go tfBus.Run(ctx, tfOutCh)

	go histWriter.Run(ctx, historyTFCh)
	go func() {
		for sb := range cacheTFCh {
			bufCache.WriteTFBar(sb)
		}
	}()

	// Event-driven mode: re-run the orchestrator the moment a timeframe bar
	// closes, using the freshly backfilled bar prefix from the adapter.
	go func() {
		for sb := range triggerTFCh {
			if sb.Forming {
				continue
			}
			go runOnce(ctx, orch, feedAdapter, publish, sb.Symbol, cfg.Market, sb.Timeframe)
		}
	}()

	// ---- Cron-driven catch-up mode (§1's "periodically re-evaluated on a
	// growing prefix") — a backstop in case a bar-close event is missed. ----
	sched := scheduler.New(orch, feedAdapter, log, 500)
	sched.OnOutcome = func(_ scheduler.Watch, signals []model.Signal) { publish(signals) }
	var watches []scheduler.Watch
	for _, sym := range cfg.Symbols {
		for _, tf := range cfg.Timeframes {
			watches = append(watches, scheduler.Watch{Symbol: sym, Market: cfg.Market, Timeframe: tf})
		}
	}
	if err := sched.Watch(cfg.SchedulerCron, watches...); err != nil {
		log.Error("scheduler registration failed", "error", err)
	} else {
		sched.Start()
		defer sched.Stop()
	}

	// ---- Broadcast gateway ----
	start := time.Now()
	hub := gateway.NewHub(cacheWriter.Client(), cfg.Symbols)
	go hub.Run(ctx)
	go hub.StartMetricsBroadcast(ctx, start)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, cacheWriter.Client(), ctx, cfg.Symbols, start)
	gwSrv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}
	go func() {
		log.Info("gateway listening", "addr", cfg.GatewayAddr)
		if err := gwSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("gateway server error", "error", err)
		}
	}()

	health.StartLivenessChecker(ctx, cacheWriter.Client(), histWriter.DB(), 10*time.Second)

	log.Info("pipeline ready")

	<-sigCh
	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	gwSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
}

// runOnce pulls a fresh bar prefix and runs one orchestrator pass, publishing
// any emitted signals. Used by the event-driven trigger path; the scheduler
// drives the same call on a cron tick via scheduler.KlineSource.
func runOnce(ctx context.Context, orch *orchestrator.Orchestrator, feedAdapter *feed.Adapter, publish func([]model.Signal), symbol string, market model.Market, tf model.Timeframe) {
	bars, err := feedAdapter.GetKlines(ctx, symbol, market, tf, 500)
	if err != nil {
		return
	}
	outcome := orch.Run(ctx, bars, symbol, market, tf)
	if outcome.Err != nil {
		return
	}
	publish(outcome.Signals)
}

