// Package scheduler runs the periodic maintenance jobs of the predictor on
// robfig/cron: cache sweeps, snapshot publishing, stale buffer recovery,
// prediction outcome evaluation and candle retention.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/preet1249/AI-Trading-ML/internal/buffer"
	"github.com/preet1249/AI-Trading-ML/internal/model"
	"github.com/preet1249/AI-Trading-ML/internal/store/sqlite"
)

// Config holds one cron spec per job. An empty spec disables the job.
type Config struct {
	CacheSweep      string `yaml:"cache_sweep" split_words:"true"`
	SnapshotPublish string `yaml:"snapshot_publish" split_words:"true"`
	StaleRecovery   string `yaml:"stale_recovery" split_words:"true"`
	OutcomeEval     string `yaml:"outcome_eval" split_words:"true"`
	Retention       string `yaml:"retention"`
	RetentionDays   int    `yaml:"retention_days" split_words:"true"`
	OutcomeBatch    int    `yaml:"outcome_batch" split_words:"true"`
}

func DefaultConfig() Config {
	return Config{
		CacheSweep:      "@every 30s",
		SnapshotPublish: "@every 10s",
		StaleRecovery:   "@every 15s",
		OutcomeEval:     "@every 1m",
		Retention:       "@daily",
		RetentionDays:   30,
		OutcomeBatch:    100,
	}
}

// Specs maps job names to their cron specs.
func (c Config) Specs() map[string]string {
	return map[string]string{
		"cache_sweep":      c.CacheSweep,
		"snapshot_publish": c.SnapshotPublish,
		"stale_recovery":   c.StaleRecovery,
		"outcome_eval":     c.OutcomeEval,
		"retention":        c.Retention,
	}
}

type Sweeper interface {
	Sweep() int
}

type SnapshotSource interface {
	Analyze(ctx context.Context, symbol string) (*model.Snapshot, error)
}

// SnapshotSink receives encoded model.SnapshotEvent payloads.
type SnapshotSink interface {
	Publish(ctx context.Context, key model.Key, payload []byte) error
}

type Buffers interface {
	View(key model.Key) (buffer.View, error)
	StaleKeys() []model.Key
}

type Repairer interface {
	RequestBackfill(key model.Key) bool
}

type Journal interface {
	Due(ctx context.Context, now time.Time, limit int) ([]sqlite.Entry, error)
	Resolve(ctx context.Context, id string, r sqlite.Result, actual float64) error
}

type Pruner interface {
	Prune(before time.Time) (int64, error)
}

// Deps are the collaborators of the jobs. A nil dependency disables the
// jobs that need it.
type Deps struct {
	Cache     Sweeper
	Snapshots SnapshotSource
	Sinks     []SnapshotSink
	Buffers   Buffers
	Repairer  Repairer
	Journal   Journal
	Pruner    Pruner
}

// Scheduler manages all cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	symbols []string
	deps    Deps
	ctx     context.Context
	now     func() time.Time

	mu        sync.Mutex        // serialises publishing
	published map[string]string // symbol -> last published fingerprint

	// OnOutcome observes every resolved prediction. Optional.
	OnOutcome func(e sqlite.Entry, r sqlite.Result, price float64)
}

// New creates a Scheduler whose jobs run under ctx.
func New(ctx context.Context, cfg Config, symbols []string, deps Deps) *Scheduler {
	if cfg.OutcomeBatch <= 0 {
		cfg.OutcomeBatch = 100
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		cfg:       cfg,
		symbols:   symbols,
		deps:      deps,
		ctx:       ctx,
		now:       time.Now,
		published: make(map[string]string),
	}
}

// RegisterAll registers every job that has a spec and its dependencies.
func (s *Scheduler) RegisterAll() error {
	jobs := []struct {
		name    string
		spec    string
		enabled bool
		run     func()
	}{
		{"cache_sweep", s.cfg.CacheSweep, s.deps.Cache != nil, func() { s.SweepCache() }},
		{"snapshot_publish", s.cfg.SnapshotPublish, s.deps.Snapshots != nil && len(s.deps.Sinks) > 0, func() { s.PublishSnapshots(s.ctx) }},
		{"stale_recovery", s.cfg.StaleRecovery, s.deps.Buffers != nil && s.deps.Repairer != nil, func() { s.RecoverStale() }},
		{"outcome_eval", s.cfg.OutcomeEval, s.deps.Journal != nil && s.deps.Buffers != nil, func() { s.EvaluateOutcomes(s.ctx) }},
		{"retention", s.cfg.Retention, s.deps.Pruner != nil && s.cfg.RetentionDays > 0, func() { s.PruneCandles() }},
	}
	for _, j := range jobs {
		if j.spec == "" || !j.enabled {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, j.run); err != nil {
			return fmt.Errorf("register %s: %w", j.name, err)
		}
		log.Printf("[scheduler] registered %s (%s)", j.name, j.spec)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("[scheduler] started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[scheduler] stopped")
}

// SweepCache drops expired cache entries.
func (s *Scheduler) SweepCache() int {
	n := s.deps.Cache.Sweep()
	if n > 0 {
		log.Printf("[scheduler] swept %d cached snapshots", n)
	}
	return n
}

// PublishSnapshots analyses every symbol and hands changed snapshots to the
// sinks. It returns how many snapshots were published.
func (s *Scheduler) PublishSnapshots(ctx context.Context) int {
	published := 0
	for _, sym := range s.symbols {
		if s.PublishSymbol(ctx, sym) {
			published++
		}
	}
	return published
}

// PublishSymbol publishes the snapshot of one symbol unless its fingerprint
// matches the last one delivered. It reports whether a sink accepted it.
func (s *Scheduler) PublishSymbol(ctx context.Context, sym string) bool {
	snap, err := s.deps.Snapshots.Analyze(ctx, sym)
	if err != nil {
		log.Printf("[scheduler] analyze %s: %v", sym, err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.published[sym] == snap.Fingerprint {
		return false
	}
	payload, err := json.Marshal(snap.Event())
	if err != nil {
		log.Printf("[scheduler] encode %s: %v", sym, err)
		return false
	}
	key := model.NewKey(sym, snap.Timeframe)
	delivered := false
	for _, sink := range s.deps.Sinks {
		if err := sink.Publish(ctx, key, payload); err != nil {
			log.Printf("[scheduler] publish %s: %v", key, err)
			continue
		}
		delivered = true
	}
	if delivered {
		s.published[sym] = snap.Fingerprint
	}
	return delivered
}

// RecoverStale asks the ingest goroutine of every stale key to backfill.
func (s *Scheduler) RecoverStale() int {
	n := 0
	for _, key := range s.deps.Buffers.StaleKeys() {
		if s.deps.Repairer.RequestBackfill(key) {
			n++
		}
	}
	if n > 0 {
		log.Printf("[scheduler] requested backfill for %d stale keys", n)
	}
	return n
}

// latestPrice is the close of the forming candle, or of the newest closed one.
func latestPrice(v buffer.View) (float64, bool) {
	if v.Open != nil {
		return v.Open.Close, true
	}
	if c, ok := v.Last(); ok {
		return c.Close, true
	}
	return 0, false
}

// EvaluateOutcomes scores every due prediction against the latest price of
// its buffer and returns how many were resolved.
func (s *Scheduler) EvaluateOutcomes(ctx context.Context) int {
	due, err := s.deps.Journal.Due(ctx, s.now(), s.cfg.OutcomeBatch)
	if err != nil {
		log.Printf("[scheduler] outcome query: %v", err)
		return 0
	}
	resolved := 0
	for _, e := range due {
		view, err := s.deps.Buffers.View(model.NewKey(e.Symbol, e.Timeframe))
		if err != nil {
			log.Printf("[scheduler] outcome %s: %v", e.ID, err)
			continue
		}
		price, ok := latestPrice(view)
		if !ok {
			continue
		}
		r := sqlite.Evaluate(e, price)
		if err := s.deps.Journal.Resolve(ctx, e.ID, r, price); err != nil {
			log.Printf("[scheduler] resolve %s: %v", e.ID, err)
			continue
		}
		resolved++
		log.Printf("[scheduler] prediction %s %s %s at %.8g: %s (accuracy %.1f)",
			e.ID, e.Symbol, e.Direction, price, r.Outcome, r.Accuracy)
		if s.OnOutcome != nil {
			s.OnOutcome(e, r, price)
		}
	}
	return resolved
}

// PruneCandles deletes stored candles older than the retention window.
func (s *Scheduler) PruneCandles() {
	before := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	n, err := s.deps.Pruner.Prune(before)
	if err != nil {
		log.Printf("[scheduler] prune: %v", err)
		return
	}
	log.Printf("[scheduler] pruned %d candles before %s", n, before.Format(time.RFC3339))
}
