package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, rdb *goredis.Client, ctx context.Context, symbols []string, processStart time.Time) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		lastTS := r.URL.Query().Get("last_ts")
		hub.HandleWSRequest(conn, lastTS)
	})

	// REST: latest signal per watched symbol.
	mux.HandleFunc("/api/signals/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.GetLatestAll())
	})

	// REST: historical signals for one symbol, from the durable Redis stream.
	mux.HandleFunc("/api/signals", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		symbol := r.URL.Query().Get("symbol")
		if symbol == "" && len(symbols) > 0 {
			symbol = symbols[0]
		}
		limit := 100
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
				limit = l
			}
		}

		snap, err := BuildSignalSnapshot(ctx, rdb, symbol, limit)
		if err != nil {
			json.NewEncoder(w).Encode([]interface{}{})
			return
		}
		json.NewEncoder(w).Encode(snap.Signals)
	})

	// REST: watched symbols + basic deployment config.
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"symbols": symbols,
		})
	})

	// REST: missed envelopes for a channel, for client gap backfill.
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		channel := r.URL.Query().Get("channel")
		fromSeq, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		toSeq, _ := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
		if channel == "" {
			json.NewEncoder(w).Encode([]interface{}{})
			return
		}
		entries := hub.GetReplayRange(channel, fromSeq, toSeq)
		w.Write([]byte("["))
		for i, e := range entries {
			if i > 0 {
				w.Write([]byte(","))
			}
			w.Write(e)
		}
		w.Write([]byte("]"))
	})

	// REST: system metrics snapshot.
	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		m := CollectMetrics(processStart)
		if hub.Latency != nil {
			m.LatencyP50, m.LatencyP95, m.LatencyP99 = hub.Latency.Percentiles()
		}
		json.NewEncoder(w).Encode(m)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		redisOK := true
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			redisOK = false
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "ok",
			"redis":      redisOK,
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
