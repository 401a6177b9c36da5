package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/preet1249/AI-Trading-ML/internal/buffer"
	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// SupervisorConfig tunes reconnects and repairs.
type SupervisorConfig struct {
	BackfillLimit   int           `yaml:"backfill_limit" split_words:"true"`
	BackfillTimeout time.Duration `yaml:"backfill_timeout" split_words:"true"`
	ReconnectMin    time.Duration `yaml:"reconnect_min" split_words:"true"`
	ReconnectMax    time.Duration `yaml:"reconnect_max" split_words:"true"`
	// RepairInterval spaces repeated backfill attempts for a stale key.
	RepairInterval time.Duration `yaml:"repair_interval" split_words:"true"`
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		BackfillLimit:   buffer.DefaultCapacity,
		BackfillTimeout: 15 * time.Second,
		ReconnectMin:    time.Second,
		ReconnectMax:    30 * time.Second,
		RepairInterval:  5 * time.Second,
	}
}

// Supervisor owns the ingest goroutine of every subscribed key.
type Supervisor struct {
	conn    Connector
	buf     *buffer.Manager
	history HistorySource
	cfg     SupervisorConfig

	mu     sync.Mutex
	repair map[model.Key]chan struct{}

	// Optional hooks.
	OnReconnect func(key model.Key, err error)
	OnBackfill  func(key model.Key, loaded int, err error)
}

// NewSupervisor wires conn into buf. history may be nil.
func NewSupervisor(conn Connector, buf *buffer.Manager, history HistorySource, cfg SupervisorConfig) *Supervisor {
	def := DefaultSupervisorConfig()
	if cfg.BackfillLimit <= 0 {
		cfg.BackfillLimit = buf.Capacity()
	}
	if cfg.BackfillTimeout <= 0 {
		cfg.BackfillTimeout = def.BackfillTimeout
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = def.ReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = def.ReconnectMax
	}
	if cfg.RepairInterval <= 0 {
		cfg.RepairInterval = def.RepairInterval
	}
	return &Supervisor{
		conn:    conn,
		buf:     buf,
		history: history,
		cfg:     cfg,
		repair:  make(map[model.Key]chan struct{}),
	}
}

// Run supervises every key until ctx is done.
func (s *Supervisor) Run(ctx context.Context, keys []model.Key) {
	var wg sync.WaitGroup
	for _, key := range keys {
		ch := make(chan struct{}, 1)
		s.mu.Lock()
		s.repair[key] = ch
		s.mu.Unlock()

		wg.Add(1)
		go func(key model.Key) {
			defer wg.Done()
			s.runKey(ctx, key, ch)
		}(key)
	}
	log.Printf("[supervisor] %s: supervising %d keys", s.conn.Name(), len(keys))
	wg.Wait()
}

// RequestBackfill asks the goroutine owning key to repair its buffer.
// It never blocks and reports whether key is supervised.
func (s *Supervisor) RequestBackfill(key model.Key) bool {
	s.mu.Lock()
	ch, ok := s.repair[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- struct{}{}:
	default:
	}
	return true
}

func (s *Supervisor) runKey(ctx context.Context, key model.Key, repair <-chan struct{}) {
	var lastRepair time.Time
	if err := s.backfill(ctx, key, true); err != nil {
		log.Printf("[supervisor] %s initial backfill: %v", key, err)
	}

	b := &backoff.Backoff{
		Min:    s.cfg.ReconnectMin,
		Max:    s.cfg.ReconnectMax,
		Factor: 2,
		Jitter: true,
	}

	for ctx.Err() == nil {
		err := s.pump(ctx, key, repair, b, &lastRepair)
		if ctx.Err() != nil {
			return
		}
		s.buf.MarkStale(key)
		wait := b.Duration()
		log.Printf("[supervisor] %s stream ended (%v), reconnecting in %s", key, err, wait)
		if s.OnReconnect != nil {
			s.OnReconnect(key, err)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if err := s.backfill(ctx, key, false); err != nil {
			log.Printf("[supervisor] %s backfill after reconnect: %v", key, err)
		}
		lastRepair = time.Now()
	}
}

// pump runs one subscription and applies its updates until it fails.
func (s *Supervisor) pump(ctx context.Context, key model.Key, repair <-chan struct{}, b *backoff.Backoff, lastRepair *time.Time) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan model.Candle, 64)
	errc := make(chan error, 1)
	go func() {
		err := s.conn.Subscribe(sctx, key, updates)
		if err == nil {
			err = ErrStreamClosed
		}
		errc <- err
	}()

	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-errc:
			return err

		case c := <-updates:
			if first {
				b.Reset()
				first = false
			}
			if err := s.buf.IngestTick(key, c); err != nil {
				return err
			}
			if s.buf.Stale(key) && time.Since(*lastRepair) >= s.cfg.RepairInterval {
				*lastRepair = time.Now()
				if err := s.backfill(ctx, key, false); err != nil {
					log.Printf("[supervisor] %s repair: %v", key, err)
				}
			}

		case <-repair:
			*lastRepair = time.Now()
			if err := s.backfill(ctx, key, false); err != nil {
				log.Printf("[supervisor] %s requested repair: %v", key, err)
			}
		}
	}
}

// backfill loads history into the buffer. The stored history is consulted
// only for the initial load, when the connector has nothing to offer.
func (s *Supervisor) backfill(ctx context.Context, key model.Key, initial bool) error {
	bctx, cancel := context.WithTimeout(ctx, s.cfg.BackfillTimeout)
	defer cancel()

	cs, err := s.conn.Backfill(bctx, key, s.cfg.BackfillLimit)
	if (err != nil || len(cs) == 0) && initial && s.history != nil {
		stored, herr := s.history.Candles(bctx, key, s.cfg.BackfillLimit)
		if herr == nil && len(stored) > 0 {
			log.Printf("[supervisor] %s %s backfill unavailable (%v), using %d stored candles",
				key, s.conn.Name(), err, len(stored))
			cs, err = stored, nil
		}
	}
	if err == nil {
		cs = ContiguousTail(cs, key.Timeframe.Duration())
		err = s.buf.Backfill(key, cs)
	}
	if err != nil {
		err = fmt.Errorf("%s backfill %s: %w", s.conn.Name(), key, err)
	}

	loaded := 0
	if err == nil {
		loaded = len(cs)
	}
	if s.OnBackfill != nil {
		s.OnBackfill(key, loaded, err)
	}
	if errors.Is(err, model.ErrBackfillNotNewer) {
		// Nothing newer upstream yet; the next closed candle makes a repair possible.
		return nil
	}
	return err
}
