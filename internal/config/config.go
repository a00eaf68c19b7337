// Package config loads chanwatch's runtime configuration: infra settings
// from environment variables in the teacher's getEnv style, plus a
// YAML-loaded per-market ChanlunParams table grounded on
// 0xC3B6-MarketSentinel's file-then-env-override config loader.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chanwatch/internal/model"
)

// Config holds everything cmd/monitor needs to wire the analytical core and
// its reference feed/gateway/scheduler adapters.
type Config struct {
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	GatewayAddr   string
	FeedWSURL     string

	Symbols    []string
	Market     model.Market
	Timeframes []model.Timeframe

	DedupeWindow  time.Duration
	StoreCapacity int
	ToastCapacity int
	ToastLifetime time.Duration

	SchedulerCron string

	ChanlunParamsPath string
	chanlunParams     map[model.Market]model.ChanlunParams
}

// Load reads configuration from environment variables, falling back to
// sensible defaults, then loads the per-market ChanlunParams override table
// from the YAML file at CHANLUN_PARAMS_PATH (if present).
func Load() (*Config, error) {
	cfg := &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/chanwatch.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":8080"),
		FeedWSURL:     getEnv("FEED_WS_URL", "ws://localhost:9001/ws"),

		Symbols:    splitCSV(getEnv("SYMBOLS", "BTCUSD")),
		Market:     model.Market(getEnv("MARKET", string(model.MarketCrypto))),
		Timeframes: parseTimeframes(getEnv("TIMEFRAMES", "15m,1H,4H,1D")),

		DedupeWindow:  parseDuration(getEnv("DEDUPE_WINDOW", "5m"), 5*time.Minute),
		StoreCapacity: parseInt(getEnv("STORE_CAPACITY", "500"), 500),
		ToastCapacity: parseInt(getEnv("TOAST_CAPACITY", "5"), 5),
		ToastLifetime: parseDuration(getEnv("TOAST_LIFETIME", "8s"), 8*time.Second),

		SchedulerCron: getEnv("SCHEDULER_CRON", "*/30 * * * * *"),

		ChanlunParamsPath: getEnv("CHANLUN_PARAMS_PATH", "config/chanlun_params.yaml"),
	}

	params, err := loadChanlunParams(cfg.ChanlunParamsPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.chanlunParams = params

	return cfg, nil
}

// ParamsLookup returns an orchestrator.ParamsLookup-shaped function closing
// over this config's market override table, falling back to
// model.CryptoChanlunParams/model.DefaultChanlunParams for markets with no
// YAML entry.
func (c *Config) ParamsLookup() func(market model.Market) model.ChanlunParams {
	return func(market model.Market) model.ChanlunParams {
		if p, ok := c.chanlunParams[market]; ok {
			return p
		}
		if market == model.MarketCrypto {
			return model.CryptoChanlunParams()
		}
		return model.DefaultChanlunParams()
	}
}

// loadChanlunParams reads a YAML file mapping market name -> ChanlunParams
// overrides. A missing file is not an error — every market falls back to
// the spec's built-in defaults.
func loadChanlunParams(path string) (map[model.Market]model.ChanlunParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[model.Market]model.ChanlunParams{}, nil
		}
		return nil, fmt.Errorf("read chanlun params: %w", err)
	}

	var raw map[string]model.ChanlunParams
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse chanlun params: %w", err)
	}

	out := make(map[model.Market]model.ChanlunParams, len(raw))
	for market, params := range raw {
		out[model.Market(market)] = params
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTimeframes(s string) []model.Timeframe {
	parts := splitCSV(s)
	out := make([]model.Timeframe, 0, len(parts))
	for _, p := range parts {
		out = append(out, model.Timeframe(p))
	}
	return out
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("[config] invalid int %q, using default %d", s, fallback)
		return fallback
	}
	return n
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("[config] invalid duration %q, using default %v", s, fallback)
		return fallback
	}
	return d
}
