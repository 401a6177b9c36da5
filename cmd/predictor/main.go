// cmd/predictor runs the market-structure predictor: candle ingestion,
// technical analysis, the prediction pipeline and its HTTP/websocket API.
//
// Usage:
//
//	predictor -config config.yaml
//
// Every setting can be overridden with PREDICTOR_* environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/preet1249/AI-Trading-ML/config"
	"github.com/preet1249/AI-Trading-ML/internal/buffer"
	"github.com/preet1249/AI-Trading-ML/internal/gateway"
	"github.com/preet1249/AI-Trading-ML/internal/indicator"
	"github.com/preet1249/AI-Trading-ML/internal/logger"
	"github.com/preet1249/AI-Trading-ML/internal/marketdata"
	"github.com/preet1249/AI-Trading-ML/internal/marketdata/binance"
	"github.com/preet1249/AI-Trading-ML/internal/marketdata/bus"
	"github.com/preet1249/AI-Trading-ML/internal/marketdata/feed"
	"github.com/preet1249/AI-Trading-ML/internal/metrics"
	"github.com/preet1249/AI-Trading-ML/internal/model"
	"github.com/preet1249/AI-Trading-ML/internal/news"
	"github.com/preet1249/AI-Trading-ML/internal/notification"
	"github.com/preet1249/AI-Trading-ML/internal/oracle"
	"github.com/preet1249/AI-Trading-ML/internal/pipeline"
	"github.com/preet1249/AI-Trading-ML/internal/scheduler"
	redisstore "github.com/preet1249/AI-Trading-ML/internal/store/redis"
	sqlitestore "github.com/preet1249/AI-Trading-ML/internal/store/sqlite"
	"github.com/preet1249/AI-Trading-ML/internal/structure"
	"github.com/preet1249/AI-Trading-ML/internal/ta"
	"github.com/preet1249/AI-Trading-ML/internal/tacache"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[predictor] config: %v", err)
	}
	logger.Init(cfg.Service, cfg.Log)
	log.Printf("[predictor] starting: source=%s symbols=%v timeframes=%v", cfg.Source, cfg.Symbols, cfg.TA.Timeframes)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Printf("[predictor] fatal: %v", err)
		os.Exit(1)
	}
	log.Println("[predictor] shutdown complete")
}

func connector(cfg *config.Config) (marketdata.Connector, error) {
	switch cfg.Source {
	case config.SourceFeed:
		return feed.New(cfg.Feed)
	case config.SourceBinance:
		return binance.New(cfg.Binance), nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(cfg.Redis.Enabled)
	alerts := notification.NewDispatcher(notification.FromConfig(cfg.Notify), cfg.Notify)
	alerts.OnDrop = func() { log.Println("[predictor] alert queue full, dropping alert") }

	// ---- SQLite ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		return err
	}
	defer writer.Close()
	writer.OnCommit = m.Committed
	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer reader.Close()
	journal := sqlitestore.NewJournal(writer.DB())

	// ---- Redis (optional) ----
	var (
		rdb       *goredis.Client
		publisher *redisstore.Publisher
	)
	if cfg.Redis.Enabled {
		rdb, err = redisstore.Dial(ctx, cfg.Redis)
		if err != nil {
			// The publisher holds snapshots while Redis is down; start anyway.
			log.Printf("[predictor] redis unavailable at startup: %v", err)
			rdb = redisstore.NewClient(cfg.Redis)
		}
		defer rdb.Close()
		publisher = redisstore.NewPublisher(rdb, cfg.Redis)
		publisher.OnHold = m.SnapshotHeld
		publisher.OnFlush = m.SnapshotsFlushed
		publisher.Breaker().OnStateChange = func(from, to redisstore.State) {
			m.BreakerState(int(to), to == redisstore.StateOpen)
			log.Printf("[redis] circuit breaker %s -> %s", from, to)
			if to == redisstore.StateOpen {
				alerts.Notify(notification.Alert{
					Level:   notification.LevelCritical,
					Title:   "Redis snapshot publishing suspended",
					Message: "circuit breaker opened; snapshots are held until Redis recovers",
				})
			}
		}
	}

	// ---- Buffers ----
	buf := buffer.New(cfg.BufferCapacity)
	closedCh := make(chan sqlitestore.CandleRecord, 4096)
	buf.OnClosed = func(key model.Key, c model.Candle) {
		m.CandleClosed(key, c)
		health.SetLastCandle(c.OpenTime.Add(key.Timeframe.Duration()))
		select {
		case closedCh <- sqlitestore.CandleRecord{Key: key, Candle: c}:
		default:
			log.Printf("[predictor] closed-candle queue full, dropping %s", key)
		}
	}
	buf.OnDropped = m.CandleDropped
	buf.OnStale = m.GapDetected
	m.ObserveEvictions(reg, buf.Evicted)
	health.StaleKeys = func() []string {
		keys := buf.StaleKeys()
		out := make([]string, len(keys))
		for i, k := range keys {
			out[i] = k.String()
		}
		return out
	}

	conn, err := connector(cfg)
	if err != nil {
		return err
	}
	sup := marketdata.NewSupervisor(conn, buf, reader, cfg.Supervisor)
	sup.OnBackfill = m.Backfilled
	sup.OnReconnect = m.Reconnected

	// ---- Analysis & pipeline ----
	cache := tacache.New(cfg.Cache)
	cache.OnHit = m.CacheHit
	cache.OnMiss = m.CacheMiss
	cache.OnEvict = m.CacheEvicted
	cache.OnCompute = m.Computed
	analyzer := ta.NewAnalyzer(buf, cache,
		indicator.NewEngine(cfg.Indicators),
		structure.NewDetector(cfg.Structure),
		cfg.TA)

	graph := pipeline.NewGraph(cfg.Pipeline, analyzer, news.New(cfg.News), oracle.New(cfg.Oracle))
	graph.OnStage = func(stage pipeline.Stage, d time.Duration, err error) {
		m.StageDone(string(stage), d, err)
	}
	runner := pipeline.NewRunner(graph)
	runner.OnRun = m.RunDone
	primary := cfg.TA.Primary()
	runner.OnResult = func(ctx context.Context, res *pipeline.Result) {
		if res.Prediction == nil {
			return
		}
		e, err := journal.Record(context.WithoutCancel(ctx), res.TraceID, res.Symbol, primary, *res.Prediction)
		if err != nil {
			log.Printf("[predictor] journal %s: %v", res.TraceID, err)
			return
		}
		m.Predictions.Inc()
		log.Printf("[predictor] journaled prediction %s (%s %s, due %s)", e.ID, e.Symbol, e.Direction, e.DueAt.Format(time.RFC3339))
		if p := res.Prediction; p.Direction != model.BiasNeutral && p.Confidence >= cfg.Notify.MinConfidence {
			alerts.Notify(notification.PredictionAlert(res.Symbol, primary, *p))
		}
	}

	// ---- Gateway ----
	hub := gateway.NewHub(cfg.Gateway)
	hub.OnClients = func(n int) { m.WSClients.Set(float64(n)) }
	deps := gateway.Deps{Runner: runner, Analyzer: analyzer, Predictions: journal, Hub: hub}
	sinks := []scheduler.SnapshotSink{hub}
	var redisReader *redisstore.Reader
	if publisher != nil {
		redisReader = redisstore.NewReader(rdb)
		deps.History = redisReader
		// Published snapshots reach the hub back through Redis pub/sub.
		sinks = []scheduler.SnapshotSink{publisher}
	}
	api := gateway.NewServer(cfg.Gateway, deps)

	// ---- Scheduler ----
	sched := scheduler.New(ctx, cfg.Scheduler, cfg.Symbols, scheduler.Deps{
		Cache:     cache,
		Snapshots: analyzer,
		Sinks:     sinks,
		Buffers:   buf,
		Repairer:  sup,
		Journal:   journal,
		Pruner:    writer,
	})
	sched.OnOutcome = func(e sqlitestore.Entry, r sqlitestore.Result, price float64) {
		m.OutcomeEvaluated(string(r.Outcome))
		if r.Outcome != sqlitestore.OutcomeExpired {
			alerts.Notify(notification.OutcomeAlert(e.Symbol, e.Direction, string(r.Outcome), r.Accuracy, price))
		}
	}
	if err := sched.RegisterAll(); err != nil {
		return err
	}

	// ---- Start everything ----
	var wg sync.WaitGroup
	goFn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goFn(func() { alerts.Run(ctx) })

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, reg, health)
	metricsSrv.Start()
	health.StartLivenessChecker(ctx, rdb, writer.DB(), 10*time.Second)

	// Closed candles go to the SQLite writer and trigger a snapshot publish
	// whenever the primary timeframe closes.
	fan := bus.New[sqlitestore.CandleRecord](1024)
	toSQLite := fan.Subscribe()
	toPublish := fan.Subscribe()
	fan.OnDrop = func(i int) { log.Printf("[predictor] closed-candle subscriber %d lagging", i) }
	goFn(func() { fan.Run(ctx, closedCh) })
	goFn(func() { writer.Run(ctx, toSQLite) })
	goFn(func() {
		for rec := range toPublish {
			if rec.Key.Timeframe == primary {
				sched.PublishSymbol(ctx, rec.Key.Symbol)
			}
		}
	})

	runner.Start(ctx)
	goFn(func() { sup.Run(ctx, cfg.Keys()) })
	if redisReader != nil {
		hub.Warm(ctx, redisReader, primaryKeys(cfg))
		goFn(func() { hub.Relay(ctx, redisReader) })
	}
	sched.Start()

	apiErr := make(chan error, 1)
	go func() { apiErr <- api.Start() }()

	log.Printf("[predictor] running: api=%s metrics=%s", cfg.Gateway.Addr, cfg.MetricsAddr)

	var runErr error
	select {
	case <-ctx.Done():
		log.Println("[predictor] shutdown signal received, cleaning up...")
	case runErr = <-apiErr:
		log.Printf("[predictor] api server stopped: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Stop(shutdownCtx); err != nil {
		log.Printf("[predictor] api shutdown: %v", err)
	}
	sched.Stop()
	runner.Stop()
	metricsSrv.Stop(shutdownCtx)
	if publisher != nil {
		publisher.Flush(shutdownCtx)
	}
	// The fan-out and the writer exit once ctx is done; the writer flushes
	// its last batch first.
	cancelRun()
	wg.Wait()
	return runErr
}

func primaryKeys(cfg *config.Config) []model.Key {
	keys := make([]model.Key, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		keys = append(keys, model.NewKey(s, cfg.TA.Primary()))
	}
	return keys
}
