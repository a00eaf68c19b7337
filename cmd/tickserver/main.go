// cmd/tickserver — demo WebSocket quote server.
// Broadcasts simulated model.Quote values so internal/feed/ingest can be
// exercised end-to-end without a real market-data provider.
//
// Quote JSON shape is identical to model.Quote:
//
//	{"symbol":"BTCUSD","price":61234.5,"time_ms":1740000000000}
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  — listen address  (default: ":9001")
//	TICK_SYMBOLS      — comma-separated symbols (default: "BTCUSD")
//	TICK_INTERVAL_MS  — broadcast interval milliseconds (default: "100")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chanwatch/internal/model"
)

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol string
	Price  float64 // current simulated price
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop quote
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tickserver] upgrade error: %v", err)
			return
		}
		log.Printf("[tickserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[tickserver] client disconnected: %s", r.RemoteAddr)
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Quote generator ──────────────────────────────────────────────────────────

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	newPrice := price + price*pct
	if newPrice < 0.01 {
		newPrice = 0.01
	}
	return newPrice
}

func runGenerator(h *hub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for i := range instruments {
			instruments[i].Price = walkPrice(instruments[i].Price)
			q := model.Quote{
				Symbol: instruments[i].Symbol,
				Price:  instruments[i].Price,
				TimeMS: time.Now().UnixMilli(),
			}
			b, err := json.Marshal(q)
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tickserver] starting demo quote server...")

	addr := envOrDefault("TICK_SERVER_ADDR", ":9001")
	symbolsEnv := envOrDefault("TICK_SYMBOLS", "BTCUSD")
	intervalMs := envIntOrDefault("TICK_INTERVAL_MS", 100)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[tickserver] no symbols configured via TICK_SYMBOLS")
	}
	log.Printf("[tickserver] symbols: %+v", instruments)
	log.Printf("[tickserver] broadcast interval: %dms", intervalMs)

	h := newHub()

	go runGenerator(h, instruments, intervalMs)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})

	log.Printf("[tickserver] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	defaultPrices := map[string]float64{
		"BTCUSD":  61200.0,
		"ETHUSD":  3400.0,
		"BTCUSDT": 61200.0,
	}

	var result []instrument
	for _, part := range strings.Split(s, ",") {
		symbol := strings.TrimSpace(part)
		if symbol == "" {
			continue
		}
		price := defaultPrices[symbol]
		if price == 0 {
			price = 100.0
		}
		result = append(result, instrument{Symbol: symbol, Price: price})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
