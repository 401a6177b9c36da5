package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/predictor.db"
}

// CandleRecord is one closed candle with its buffer key.
type CandleRecord struct {
	Key    model.Key
	Candle model.Candle
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db *sql.DB

	// OnCommit observes every batch commit. Optional.
	OnCommit func(n int, d time.Duration, err error)
}

// DB returns the underlying sql.DB for health checks and the journal.
func (w *Writer) DB() *sql.DB { return w.db }

func open(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
}

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol  TEXT    NOT NULL,
			tf      TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			open    REAL    NOT NULL,
			high    REAL    NOT NULL,
			low     REAL    NOT NULL,
			close   REAL    NOT NULL,
			volume  REAL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS predictions (
			id           TEXT    PRIMARY KEY,
			trace_id     TEXT    NOT NULL,
			symbol       TEXT    NOT NULL,
			tf           TEXT    NOT NULL,
			direction    TEXT    NOT NULL,
			confidence   INTEGER NOT NULL,
			entry        REAL    NOT NULL,
			stop         REAL,
			take_profits TEXT    NOT NULL DEFAULT '[]',
			reasoning    TEXT,
			created_at   INTEGER NOT NULL,
			due_at       INTEGER NOT NULL,
			outcome      TEXT,
			accuracy     REAL,
			actual_price REAL,
			resolved_at  INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_predictions_due ON predictions (outcome, due_at);
		CREATE INDEX IF NOT EXISTS idx_predictions_symbol ON predictions (symbol, created_at);
	`)
	return err
}

// Run reads closed candles from ch and inserts them in batched transactions.
// Flushes every batchSize candles OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or ch is closed.
func (w *Writer) Run(ctx context.Context, ch <-chan CandleRecord) {
	batch := make([]CandleRecord, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		err := w.insertBatch(batch)
		if err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		}
		if w.OnCommit != nil {
			w.OnCommit(len(batch), time.Since(start), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case rec, ok := <-ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
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

// WriteCandles stores candles for key in one transaction.
func (w *Writer) WriteCandles(key model.Key, candles []model.Candle) error {
	recs := make([]CandleRecord, len(candles))
	for i, c := range candles {
		recs[i] = CandleRecord{Key: key, Candle: c}
	}
	return w.insertBatch(recs)
}

func (w *Writer) insertBatch(recs []CandleRecord) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		c := r.Candle
		if _, err := stmt.Exec(r.Key.Symbol, string(r.Key.Timeframe), c.OpenTime.UnixMilli(),
			c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Prune deletes candles older than before and returns how many were removed.
func (w *Writer) Prune(before time.Time) (int64, error) {
	res, err := w.db.Exec(`DELETE FROM candles WHERE ts < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite prune: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
