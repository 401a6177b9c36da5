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

// Reader provides read-only access for backfill fallback.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// Candles returns the newest limit candles for key, oldest first.
func (r *Reader) Candles(ctx context.Context, key model.Key, limit int) ([]model.Candle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume
			FROM candles
			WHERE symbol = ? AND tf = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, key.Symbol, string(key.Timeframe), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var (
			ts  int64
			c   model.Candle
			vol sql.NullFloat64
		)
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.OpenTime = time.UnixMilli(ts).UTC()
		c.Volume = vol.Float64
		c.Closed = true
		out = append(out, c)
	}
	return out, rows.Err()
}

// LastTimestamp returns the newest stored open time for key, or zero.
func (r *Reader) LastTimestamp(ctx context.Context, key model.Key) (time.Time, error) {
	var ts sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND tf = ?`,
		key.Symbol, string(key.Timeframe),
	).Scan(&ts)
	if err != nil || !ts.Valid {
		return time.Time{}, err
	}
	return time.UnixMilli(ts.Int64).UTC(), nil
}

// Close closes the reader connection.
func (r *Reader) Close() error {
	return r.db.Close()
}
