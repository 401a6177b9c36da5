// Package marketdata connects candle sources to the buffer manager.
//
// A Connector streams forming and closed candles for one key and serves
// recent history for backfill. The Supervisor runs one goroutine per key,
// which is the only writer of that key's buffer: it performs the initial
// backfill, pumps the stream, reconnects with backoff and repairs the
// buffer whenever it turns stale.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// ErrStreamClosed is returned by Subscribe when the upstream ends the stream
// without reporting an error.
var ErrStreamClosed = errors.New("stream closed")

// Connector is a market data source.
type Connector interface {
	Name() string

	// Subscribe streams candle updates for key into out. It blocks until ctx
	// is done or the stream fails and never returns nil. Sends on out must
	// also select on ctx.Done.
	Subscribe(ctx context.Context, key model.Key, out chan<- model.Candle) error

	// Backfill returns up to limit of the most recent closed candles,
	// oldest first. The forming candle is never included.
	Backfill(ctx context.Context, key model.Key, limit int) ([]model.Candle, error)
}

// HistorySource serves stored candles when the connector cannot.
type HistorySource interface {
	Candles(ctx context.Context, key model.Key, limit int) ([]model.Candle, error)
}

// ContiguousTail returns the longest suffix of cs spaced exactly interval apart.
func ContiguousTail(cs []model.Candle, interval time.Duration) []model.Candle {
	if len(cs) == 0 {
		return cs
	}
	i := len(cs) - 1
	for i > 0 && cs[i].OpenTime.Sub(cs[i-1].OpenTime) == interval {
		i--
	}
	return cs[i:]
}
