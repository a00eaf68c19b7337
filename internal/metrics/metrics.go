// Package metrics exposes Prometheus counters/histograms for the analytical
// core plus an HTTP server for /metrics and /healthz, grounded on the
// teacher's metrics server shape.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the orchestrator and its
// surrounding adapters emit.
type Metrics struct {
	// Orchestrator run metrics
	RunsTotal        prometheus.Counter
	RunErrorsTotal   *prometheus.CounterVec // labels: kind=malformed_bar|config_error
	RunDuration      prometheus.Histogram
	// labels: stage=indicators|detectors|dedupe plus the five chanlun
	// sub-stages (containment|fractal|bi|zhongshu|third_buy)
	StageDuration *prometheus.HistogramVec

	// Signal pipeline metrics
	SignalsEmittedTotal    *prometheus.CounterVec // labels: kind
	SignalsSuppressedTotal prometheus.Counter
	ThirdBuyCandidates     prometheus.Counter
	ThirdBuyConfirmed      prometheus.Counter

	// Store/toast gauges
	StoreSize   prometheus.Gauge
	ToastActive prometheus.Gauge

	// Feed ingest metrics (reference adapter)
	BarsIngestedTotal prometheus.Counter
	WSReconnects      prometheus.Counter
	FeedCacheWriteDur prometheus.Histogram
	FeedHistoryCommit prometheus.Histogram

	// Redis circuit breaker
	RedisWritesBuffered prometheus.Counter
}

// NewMetrics registers and returns every metric.
func NewMetrics() *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chanwatch_orchestrator_runs_total",
			Help: "Total orchestrator runs attempted",
		}),
		RunErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chanwatch_orchestrator_run_errors_total",
			Help: "Orchestrator runs rejected before reaching the store",
		}, []string{"kind"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chanwatch_orchestrator_run_duration_seconds",
			Help:    "Wall time of one full orchestrator run",
			Buckets: prometheus.DefBuckets,
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chanwatch_orchestrator_stage_duration_seconds",
			Help:    "Wall time of one orchestrator or chanlun pipeline stage",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"stage"}),

		SignalsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chanwatch_signals_emitted_total",
			Help: "Signals that survived dedup and were posted to the store",
		}, []string{"kind"}),
		SignalsSuppressedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chanwatch_signals_suppressed_total",
			Help: "Signals dropped by the dedupe cooldown",
		}),
		ThirdBuyCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chanwatch_third_buy_candidates_total",
			Help: "Third-buy candidate signals detected",
		}),
		ThirdBuyConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chanwatch_third_buy_confirmed_total",
			Help: "Third-buy confirmed signals detected",
		}),

		StoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanwatch_store_size",
			Help: "Current number of signals held in the store",
		}),
		ToastActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chanwatch_toast_active",
			Help: "Current number of active high-strength toasts",
		}),

		BarsIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chanwatch_bars_ingested_total",
			Help: "Total bars received from the feed adapter",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chanwatch_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts by the feed adapter",
		}),
		FeedCacheWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chanwatch_feed_cache_write_duration_seconds",
			Help:    "Feed cache (Redis) write latency",
			Buckets: prometheus.DefBuckets,
		}),
		FeedHistoryCommit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chanwatch_feed_history_commit_duration_seconds",
			Help:    "Feed history (SQLite) batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisWritesBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chanwatch_redis_writes_buffered_total",
			Help: "Writes buffered locally while the Redis circuit breaker was open",
		}),
	}

	prometheus.MustRegister(
		m.RunsTotal,
		m.RunErrorsTotal,
		m.RunDuration,
		m.StageDuration,
		m.SignalsEmittedTotal,
		m.SignalsSuppressedTotal,
		m.ThirdBuyCandidates,
		m.ThirdBuyConfirmed,
		m.StoreSize,
		m.ToastActive,
		m.BarsIngestedTotal,
		m.WSReconnects,
		m.FeedCacheWriteDur,
		m.FeedHistoryCommit,
		m.RedisWritesBuffered,
	)

	return m
}

// HealthStatus represents the system's dependency health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastBarTime    time.Time `json:"last_bar_time"`
	CacheConnected bool      `json:"cache_connected"`
	HistoryOK      bool      `json:"history_ok"`

	CacheLatencyMs   float64   `json:"cache_latency_ms"`
	HistoryLatencyMs float64   `json:"history_latency_ms"`
	LastCheckAt      time.Time `json:"last_check_at"`
	StartedAt        time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

// CheckCache pings the feed cache and records latency + connectivity.
func (h *HealthStatus) CheckCache(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.CacheConnected = err == nil
	h.CacheLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckHistory pings the history store and records latency + health.
func (h *HealthStatus) CheckHistory(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.HistoryOK = err == nil
	h.HistoryLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. rdb/db may be nil
// if the deployment has no feed adapter wired (core-only mode).
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckCache(probeCtx, rdb)
				}
				if db != nil {
					h.CheckHistory(probeCtx, db)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status           string `json:"status"`
		Uptime           string `json:"uptime"`
		FeedConnected    bool   `json:"feed_connected"`
		LastBarTime      string `json:"last_bar_time"`
		BarAge           string `json:"bar_age"`
		CacheConnected   bool   `json:"cache_connected"`
		CacheLatencyMs   float64 `json:"cache_latency_ms"`
		HistoryOK        bool   `json:"history_ok"`
		HistoryLatencyMs float64 `json:"history_latency_ms"`
		LastCheckAt      string `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:    h.FeedConnected,
		LastBarTime:      h.LastBarTime.Format(time.RFC3339),
		BarAge:           barAge,
		CacheConnected:   h.CacheConnected,
		CacheLatencyMs:   h.CacheLatencyMs,
		HistoryOK:        h.HistoryOK,
		HistoryLatencyMs: h.HistoryLatencyMs,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
