// Package history is the durable side of the reference feed adapter: a
// single-writer SQLite store that batches finalized timeframe bars the same
// way the teacher's SQLite writer batches candles, plus the signals the
// orchestrator emits, so a restart can backfill bars and replay
// acknowledgement state instead of starting cold. Grounded on
// internal/store/sqlite, generalized from model.Candle/model.TFCandle to
// model.Bar keyed by symbol+timeframe, and from indicator-engine snapshots
// to model.Signal rows (the core recomputes indicators fresh from the bar
// history each run — see internal/orchestrator — so there is no running
// engine state left to snapshot).
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chanwatch/internal/feed/tfbuilder"
	"chanwatch/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/chanwatch.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[history] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars_tf (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			PRIMARY KEY (symbol, timeframe, ts)
		);

		CREATE TABLE IF NOT EXISTS signals (
			id           TEXT PRIMARY KEY,
			symbol       TEXT    NOT NULL,
			market       TEXT    NOT NULL,
			timeframe    TEXT    NOT NULL,
			kind         TEXT    NOT NULL,
			strength     REAL    NOT NULL,
			price        REAL    NOT NULL,
			time_ms      INTEGER NOT NULL,
			description  TEXT,
			key_levels   TEXT,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			created_at   INTEGER NOT NULL DEFAULT (strftime('%%s', 'now'))
		);
	`)
	return err
}

// Run reads finalized timeframe bars from barCh and inserts them in batched
// transactions. Forming bars are dropped — only a closed bar is durable.
// Flushes every batchSize bars OR every flushDelay, whichever first. Blocks
// until ctx is cancelled or barCh is closed.
func (w *Writer) Run(ctx context.Context, barCh <-chan tfbuilder.SymbolBar) {
	batch := make([]tfbuilder.SymbolBar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBarBatch(batch); err != nil {
			log.Printf("[history] bar batch insert error: %v", err)
		} else {
			log.Printf("[history] committed %d bars in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case sb, ok := <-barCh:
			if !ok {
				flush()
				return
			}
			if sb.Forming {
				continue
			}
			batch = append(batch, sb)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (w *Writer) insertBarBatch(bars []tfbuilder.SymbolBar) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars_tf (symbol, timeframe, ts, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, sb := range bars {
		_, err := stmt.Exec(sb.Symbol, string(sb.Timeframe), sb.Bar.TimeSec,
			sb.Bar.Open, sb.Bar.High, sb.Bar.Low, sb.Bar.Close)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetLastTimestamp returns the last stored bar's TimeSec for a symbol and
// timeframe. Returns 0 if no bars exist.
func (w *Writer) GetLastTimestamp(symbol string, tf model.Timeframe) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM bars_tf WHERE symbol = ? AND timeframe = ?`,
		symbol, string(tf),
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// WriteSignalBatch durably records the signals a single orchestrator run
// emitted, so an acknowledgement made against the in-memory store survives a
// restart once replayed from here. Called directly after store.AddBatch
// rather than over a channel, since a run's signals already arrive as a
// batch.
func (w *Writer) WriteSignalBatch(signals []model.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO signals
			(id, symbol, market, timeframe, kind, strength, price, time_ms, description, key_levels, acknowledged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, sig := range signals {
		var keyLevels sql.NullString
		if sig.KeyLevels != nil {
			data, err := json.Marshal(sig.KeyLevels)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("marshal key levels for signal %s: %w", sig.ID, err)
			}
			keyLevels = sql.NullString{String: string(data), Valid: true}
		}

		_, err := stmt.Exec(sig.ID, sig.Symbol, string(sig.Market), string(sig.Timeframe),
			string(sig.Kind), sig.Strength, sig.Price, sig.TimeMS, sig.Description,
			keyLevels, sig.Acknowledged)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// AcknowledgeSignal persists an acknowledgement made against the in-memory
// store so a restart does not resurface it as new.
func (w *Writer) AcknowledgeSignal(id string) error {
	_, err := w.db.Exec(`UPDATE signals SET acknowledged = 1 WHERE id = ?`, id)
	return err
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
