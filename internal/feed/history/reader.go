package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"chanwatch/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for backfill on startup.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[history-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars reads bars for one symbol and timeframe, ordered by time ascending.
// feed.Adapter.GetKlines calls it to supply the orchestrator's bar history on
// every run.
func (r *Reader) ReadBars(symbol string, tf model.Timeframe, afterTS int64) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT ts, open, high, low, close
		FROM bars_tf
		WHERE symbol = ? AND timeframe = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, string(tf), afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars_tf: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.TimeSec, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, fmt.Errorf("sqlite scan bars_tf: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ReadAllBars reads every symbol's bars for one timeframe, grouped by symbol,
// ordered by time ascending within each group, for backfilling every tracked
// symbol at once. Nothing in the module calls it yet.
func (r *Reader) ReadAllBars(tf model.Timeframe, afterTS int64) (map[string][]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT symbol, ts, open, high, low, close
		FROM bars_tf
		WHERE timeframe = ? AND ts > ?
		ORDER BY symbol ASC, ts ASC
	`, string(tf), afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query all bars_tf: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.Bar)
	for rows.Next() {
		var symbol string
		var b model.Bar
		if err := rows.Scan(&symbol, &b.TimeSec, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, fmt.Errorf("sqlite scan bars_tf: %w", err)
		}
		out[symbol] = append(out[symbol], b)
	}
	return out, rows.Err()
}

// ReadSignalsSince reads every signal recorded at or after afterMS, ordered
// by time ascending, so the in-process store can be rehydrated after a
// restart without resurfacing signals already acknowledged.
func (r *Reader) ReadSignalsSince(afterMS int64) ([]model.Signal, error) {
	rows, err := r.db.Query(`
		SELECT id, symbol, market, timeframe, kind, strength, price, time_ms,
		       description, key_levels, acknowledged
		FROM signals
		WHERE time_ms >= ?
		ORDER BY time_ms ASC
	`, afterMS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var signals []model.Signal
	for rows.Next() {
		var sig model.Signal
		var market, timeframe, kind string
		var keyLevels sql.NullString
		if err := rows.Scan(&sig.ID, &sig.Symbol, &market, &timeframe, &kind,
			&sig.Strength, &sig.Price, &sig.TimeMS, &sig.Description,
			&keyLevels, &sig.Acknowledged); err != nil {
			return nil, fmt.Errorf("sqlite scan signals: %w", err)
		}
		sig.Market = model.Market(market)
		sig.Timeframe = model.Timeframe(timeframe)
		sig.Kind = model.SignalKind(kind)

		if keyLevels.Valid {
			var kl model.KeyLevels
			if err := json.Unmarshal([]byte(keyLevels.String), &kl); err != nil {
				return nil, fmt.Errorf("unmarshal key levels for signal %s: %w", sig.ID, err)
			}
			sig.KeyLevels = &kl
		}

		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
