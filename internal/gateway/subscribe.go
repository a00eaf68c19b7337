package gateway

import (
	"context"
	"encoding/json"
	"log"

	"chanwatch/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ── WS Protocol Message Types ──

// SubscribeMsg is the client → server SUBSCRIBE request. Symbols must name
// at least one symbol; an empty list is rejected with an error.
type SubscribeMsg struct {
	Type    string   `json:"type"` // "SUBSCRIBE"
	ReqID   string   `json:"reqId"`
	Symbols []string `json:"symbols"`
	Limit   int      `json:"limit"` // historical signals to include in the snapshot, per symbol
}

// UnsubscribeMsg is the client → server UNSUBSCRIBE request.
type UnsubscribeMsg struct {
	Type    string   `json:"type"` // "UNSUBSCRIBE"
	ReqID   string   `json:"reqId"`
	Symbols []string `json:"symbols"`
}

// SnapshotResponse is the server → client SNAPSHOT carrying recent signal
// history for one symbol, sent right after a SUBSCRIBE is accepted so a
// dashboard doesn't have to wait for the next live signal to draw anything.
type SnapshotResponse struct {
	Type    string        `json:"type"` // "SNAPSHOT"
	ReqID   string        `json:"reqId"`
	Symbol  string        `json:"symbol"`
	Signals []model.Signal `json:"signals"`
}

// ErrorResponse is the server → client ERROR message.
type ErrorResponse struct {
	Type  string `json:"type"` // "ERROR"
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

const defaultSnapshotLimit = 100

// BuildSignalSnapshot reads a symbol's recent signals from its durable Redis
// stream, newest-first on the wire but returned in chronological order so a
// dashboard can append straight onto a timeline.
func BuildSignalSnapshot(ctx context.Context, rdb *goredis.Client, symbol string, limit int) (*SnapshotResponse, error) {
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	if limit > 1000 {
		limit = 1000
	}

	snap := &SnapshotResponse{
		Type:    "SNAPSHOT",
		Symbol:  symbol,
		Signals: make([]model.Signal, 0, limit),
	}

	streamKey := "signal:" + symbol
	msgs, err := rdb.XRevRangeN(ctx, streamKey, "+", "-", int64(limit)).Result()
	if err != nil {
		log.Printf("[gateway] signal stream read error for %s: %v", streamKey, err)
		return snap, nil
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	for _, msg := range msgs {
		dataStr, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var sig model.Signal
		if err := json.Unmarshal([]byte(dataStr), &sig); err != nil {
			continue
		}
		snap.Signals = append(snap.Signals, sig)
	}

	return snap, nil
}

// SendJSON marshals and sends a message to the client's send channel.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] json marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Println("[gateway] client send buffer full, dropping message")
	}
}

// SendError sends an error response to the client.
func SendError(c *Client, reqID, errMsg string) {
	SendJSON(c, ErrorResponse{
		Type:  "ERROR",
		ReqID: reqID,
		Error: errMsg,
	})
}
