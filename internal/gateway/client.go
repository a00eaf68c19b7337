package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	filters ClientFilters

	subMu sync.RWMutex
}

// ClientFilters restricts which symbols a client receives signals for. An
// empty Symbols set means "no filter — receive every symbol".
type ClientFilters struct {
	Symbols []string `json:"symbols"`
}

func (c *Client) sendInitialState(lastTS string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}

		envelope, _ := json.Marshal(map[string]interface{}{
			"channel": channel,
			"data":    json.RawMessage(entry.Data),
			"ts":      entry.TS.Format(time.RFC3339Nano),
			"initial": true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Write coalescing: use NextWriter to batch queued messages
			// into a single WebSocket frame with newline separators.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		switch base.Type {
		case "SUBSCRIBE":
			var subMsg SubscribeMsg
			if err := json.Unmarshal(msg, &subMsg); err != nil {
				SendError(c, "", "invalid SUBSCRIBE: "+err.Error())
				continue
			}
			go c.handleSubscribe(subMsg)

		case "UNSUBSCRIBE":
			var unsubMsg UnsubscribeMsg
			if err := json.Unmarshal(msg, &unsubMsg); err != nil {
				continue
			}
			c.handleUnsubscribe(unsubMsg)

		default:
			if base.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      base.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
				continue
			}
			// Legacy: filter update.
			var filters ClientFilters
			if json.Unmarshal(msg, &filters) == nil {
				c.subMu.Lock()
				c.filters = filters
				c.subMu.Unlock()
			}
		}
	}
}

// handleSubscribe adds symbols to the client's filter and sends a snapshot
// of each symbol's recent signal history.
func (c *Client) handleSubscribe(msg SubscribeMsg) {
	if len(msg.Symbols) == 0 {
		SendError(c, msg.ReqID, "symbols is required")
		return
	}

	c.subMu.Lock()
	c.filters.Symbols = mergeSymbols(c.filters.Symbols, msg.Symbols)
	c.subMu.Unlock()

	log.Printf("[gateway] client subscribed: symbols=%v", msg.Symbols)

	ctx := context.Background()
	for _, symbol := range msg.Symbols {
		snap, err := BuildSignalSnapshot(ctx, c.hub.Rdb, symbol, msg.Limit)
		if err != nil {
			SendError(c, msg.ReqID, "snapshot build failed: "+err.Error())
			continue
		}
		snap.ReqID = msg.ReqID
		SendJSON(c, snap)
	}
}

// handleUnsubscribe removes symbols from the client's filter.
func (c *Client) handleUnsubscribe(msg UnsubscribeMsg) {
	c.subMu.Lock()
	c.filters.Symbols = removeSymbols(c.filters.Symbols, msg.Symbols)
	c.subMu.Unlock()

	log.Printf("[gateway] client unsubscribed: symbols=%v", msg.Symbols)
}

// matchesChannel reports whether the client should receive a message
// published on channel, given its symbol filter. An empty filter receives
// everything.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	symbols := c.filters.Symbols
	c.subMu.RUnlock()

	if len(symbols) == 0 {
		return true
	}

	symbol, ok := symbolFromSignalChannel(channel)
	if !ok {
		return true // non-signal channel (metrics) — always deliver
	}
	for _, s := range symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// symbolFromSignalChannel parses "pub:signal:<symbol>" into its symbol.
func symbolFromSignalChannel(channel string) (string, bool) {
	const prefix = "pub:signal:"
	if !strings.HasPrefix(channel, prefix) {
		return "", false
	}
	return channel[len(prefix):], true
}

func mergeSymbols(have, add []string) []string {
	seen := make(map[string]bool, len(have)+len(add))
	out := make([]string, 0, len(have)+len(add))
	for _, s := range append(append([]string{}, have...), add...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func removeSymbols(have, drop []string) []string {
	dropSet := make(map[string]bool, len(drop))
	for _, s := range drop {
		dropSet[s] = true
	}
	out := make([]string, 0, len(have))
	for _, s := range have {
		if !dropSet[s] {
			out = append(out, s)
		}
	}
	return out
}
