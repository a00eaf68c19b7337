// Package ingest is the reference feed adapter's WebSocket client: a
// broker-agnostic plain-JSON WS connection that streams model.Quote values
// into the aggregation pipeline, with exponential-backoff reconnection.
// Grounded on the teacher's internal/marketdata/wssim ingest client rather
// than its broker-specific internal/marketdata/ws, since the core has no
// broker dependency of its own (§6's adapter contract is transport-agnostic).
package ingest

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"chanwatch/internal/model"

	"github.com/gorilla/websocket"
)

// Config holds connection settings for the feed WebSocket.
type Config struct {
	// URL of the quote WebSocket server, e.g. "ws://localhost:8080/stream".
	URL string

	// ReconnectDelay is the initial backoff before a reconnect attempt.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest streams model.Quote values off a plain-JSON WebSocket feed.
type Ingest struct {
	cfg Config

	// OnReconnect is called each time a reconnection happens (optional, for
	// metrics/health wiring).
	OnReconnect func()
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Ingest{cfg: cfg}, nil
}

// Start connects to the feed WebSocket and streams quotes into quoteCh.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context, quoteCh chan<- model.Quote) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, quoteCh)
		if err == nil {
			return nil
		}

		log.Printf("[feed/ingest] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancellation.
func (ing *Ingest) runOnce(ctx context.Context, quoteCh chan<- model.Quote) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed/ingest] connected to %s", ing.cfg.URL)

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var q model.Quote
		if err := json.Unmarshal(raw, &q); err != nil {
			log.Printf("[feed/ingest] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if q.Symbol == "" {
			log.Printf("[feed/ingest] skipping quote with empty symbol")
			continue
		}

		select {
		case quoteCh <- q:
		default:
			log.Println("[feed/ingest] quoteCh full, dropping quote")
		}
	}
}
