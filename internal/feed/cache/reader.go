package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chanwatch/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader reads cached bars from Redis for the feed adapter's get_quote path.
// The core itself never touches Redis directly — this is reference-adapter
// plumbing, not part of the analytical pipeline.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	log.Printf("[cache-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// GetLatest1sBar reads the most recent 1s bar cached for symbol, used to
// derive a live quote (close price) for the adapter contract's get_quote
// call without maintaining a separate quote cache.
func (r *Reader) GetLatest1sBar(ctx context.Context, symbol string) (model.Bar, error) {
	data, err := r.client.Get(ctx, "bar:1s:latest:"+symbol).Result()
	if err != nil {
		return model.Bar{}, fmt.Errorf("get latest 1s bar for %s: %w", symbol, err)
	}
	var bar model.Bar
	if err := json.Unmarshal([]byte(data), &bar); err != nil {
		return model.Bar{}, fmt.Errorf("unmarshal latest 1s bar for %s: %w", symbol, err)
	}
	return bar, nil
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
