package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// Entry is one journaled prediction.
type Entry struct {
	ID          string             `json:"id"`
	TraceID     string             `json:"trace_id"`
	Symbol      string             `json:"symbol"`
	Timeframe   model.Timeframe    `json:"timeframe"`
	Direction   model.Bias         `json:"direction"`
	Confidence  int                `json:"confidence"`
	Entry       float64            `json:"entry_price"`
	Stop        float64            `json:"stop_loss"`
	TakeProfits []model.TakeProfit `json:"take_profits"`
	Reasoning   string             `json:"reasoning"`
	CreatedAt   time.Time          `json:"created_at"`
	DueAt       time.Time          `json:"due_at"`
	Outcome     Outcome            `json:"outcome,omitempty"`
	Accuracy    float64            `json:"accuracy"`
	ActualPrice float64            `json:"actual_price,omitempty"`
}

// Journal records predictions and their outcomes.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// NewJournal uses db, which must already carry the schema (see New).
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Record stores p. The entry is due for evaluation one timeframe later.
func (j *Journal) Record(ctx context.Context, traceID, symbol string, tf model.Timeframe, p model.Prediction) (Entry, error) {
	now := j.now().UTC()
	e := Entry{
		ID:          uuid.NewString(),
		TraceID:     traceID,
		Symbol:      symbol,
		Timeframe:   tf,
		Direction:   p.Direction,
		Confidence:  p.Confidence,
		Entry:       p.EntryPrice,
		Stop:        p.StopLoss,
		TakeProfits: p.TakeProfits,
		Reasoning:   p.Reasoning,
		CreatedAt:   now,
		DueAt:       now.Add(tf.Duration()),
	}
	if e.TakeProfits == nil {
		e.TakeProfits = []model.TakeProfit{}
	}
	tps, err := json.Marshal(e.TakeProfits)
	if err != nil {
		return Entry{}, err
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO predictions (id, trace_id, symbol, tf, direction, confidence, entry, stop, take_profits, reasoning, created_at, due_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.TraceID, e.Symbol, string(e.Timeframe), string(e.Direction), e.Confidence,
		e.Entry, e.Stop, string(tps), e.Reasoning, e.CreatedAt.UnixMilli(), e.DueAt.UnixMilli())
	if err != nil {
		return Entry{}, fmt.Errorf("journal record: %w", err)
	}
	return e, nil
}

const entryColumns = `id, trace_id, symbol, tf, direction, confidence, entry, stop, take_profits,
	reasoning, created_at, due_at, outcome, accuracy, actual_price`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e                  Entry
			tf, dir, tps       string
			reasoning, outcome sql.NullString
			stop, acc, actual  sql.NullFloat64
			created, due       int64
		)
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Symbol, &tf, &dir, &e.Confidence, &e.Entry, &stop,
			&tps, &reasoning, &created, &due, &outcome, &acc, &actual); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		e.Timeframe = model.Timeframe(tf)
		e.Direction = model.Bias(dir)
		e.Stop = stop.Float64
		e.Reasoning = reasoning.String
		e.CreatedAt = time.UnixMilli(created).UTC()
		e.DueAt = time.UnixMilli(due).UTC()
		e.Outcome = Outcome(outcome.String)
		e.Accuracy = acc.Float64
		e.ActualPrice = actual.Float64
		if err := json.Unmarshal([]byte(tps), &e.TakeProfits); err != nil {
			return nil, fmt.Errorf("journal take_profits %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Due lists unresolved entries whose due time has passed, oldest first.
func (j *Journal) Due(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT `+entryColumns+`
		FROM predictions WHERE outcome IS NULL AND due_at <= ?
		ORDER BY due_at ASC LIMIT ?`, now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("journal due: %w", err)
	}
	return scanEntries(rows)
}

// Recent lists the newest entries, optionally for one symbol.
func (j *Journal) Recent(ctx context.Context, symbol string, limit int) ([]Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM predictions`
	args := []any{}
	if symbol != "" {
		q += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	return scanEntries(rows)
}

// Resolve stores the evaluation of entry id.
func (j *Journal) Resolve(ctx context.Context, id string, r Result, actual float64) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE predictions SET outcome = ?, accuracy = ?, actual_price = ?, resolved_at = ?
		WHERE id = ? AND outcome IS NULL
	`, string(r.Outcome), r.Accuracy, actual, j.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("journal resolve %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("journal resolve %s: %w", id, sql.ErrNoRows)
	}
	return nil
}
