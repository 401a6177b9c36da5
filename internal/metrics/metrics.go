// Package metrics exposes Prometheus metrics and the /healthz status of the
// predictor. Methods on Metrics match the hook signatures of the components
// they observe so they can be assigned directly.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

const namespace = "predictor"

// Metrics holds every collector.
type Metrics struct {
	CandlesClosed  *prometheus.CounterVec // labels: tf
	CandlesDropped *prometheus.CounterVec // labels: tf
	BufferStale    *prometheus.CounterVec // labels: tf
	Backfills      *prometheus.CounterVec // labels: result
	Reconnects     *prometheus.CounterVec // labels: tf
	CandleLag      prometheus.Gauge

	CacheRequests  *prometheus.CounterVec // labels: result=hit|miss
	CacheEvictions prometheus.Counter
	ComputeDur     *prometheus.HistogramVec // labels: result

	StageDur    *prometheus.HistogramVec // labels: stage, result
	Runs        *prometheus.CounterVec   // labels: outcome
	RunDur      prometheus.Histogram
	Outcomes    *prometheus.CounterVec // labels: outcome
	Predictions prometheus.Counter

	SQLiteCommitDur prometheus.Histogram
	SQLiteErrors    prometheus.Counter

	RedisBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisBreakerTrips prometheus.Counter
	RedisHeld         prometheus.Counter
	RedisFlushed      prometheus.Counter

	WSClients prometheus.Gauge

	// Set by ObserveEvictions.
	BufferEvictions prometheus.CounterFunc

	now func() time.Time
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandlesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "candles_closed_total",
			Help: "Candles closed into a buffer window",
		}, []string{"tf"}),
		CandlesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "candles_dropped_total",
			Help: "Out-of-order candle updates dropped",
		}, []string{"tf"}),
		BufferStale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "buffer_gaps_total",
			Help: "Gaps that marked a buffer stale",
		}, []string{"tf"}),
		Backfills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "backfills_total",
			Help: "Backfill attempts by result",
		}, []string{"result"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "feed_reconnects_total",
			Help: "Market data stream reconnects",
		}, []string{"tf"}),
		CandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "candle_lag_seconds",
			Help: "Wall clock minus the close time of the newest closed candle",
		}),

		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ta_cache_requests_total",
			Help: "TA snapshot cache lookups",
		}, []string{"result"}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ta_cache_evictions_total",
			Help: "TA snapshots evicted from the cache",
		}),
		ComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "ta_compute_duration_seconds",
			Help:    "TA snapshot computation latency",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"result"}),

		StageDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pipeline_stage_duration_seconds",
			Help:    "Orchestration stage latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage", "result"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pipeline_runs_total",
			Help: "Pipeline runs by outcome",
		}, []string{"outcome"}),
		RunDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pipeline_run_duration_seconds",
			Help:    "End-to-end pipeline latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "prediction_outcomes_total",
			Help: "Evaluated predictions by outcome",
		}, []string{"outcome"}),
		Predictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "predictions_recorded_total",
			Help: "Predictions written to the journal",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sqlite_commit_errors_total",
			Help: "Failed SQLite batch commits",
		}),

		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisHeld: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "redis_held_snapshots_total",
			Help: "Snapshots held locally while Redis was unavailable",
		}),
		RedisFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "redis_flushed_snapshots_total",
			Help: "Held snapshots published after Redis recovered",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ws_clients",
			Help: "Connected websocket snapshot clients",
		}),
		now: time.Now,
	}

	reg.MustRegister(
		m.CandlesClosed, m.CandlesDropped, m.BufferStale, m.Backfills, m.Reconnects, m.CandleLag,
		m.CacheRequests, m.CacheEvictions, m.ComputeDur,
		m.StageDur, m.Runs, m.RunDur, m.Outcomes, m.Predictions,
		m.SQLiteCommitDur, m.SQLiteErrors,
		m.RedisBreakerState, m.RedisBreakerTrips, m.RedisHeld, m.RedisFlushed,
		m.WSClients,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// CandleClosed matches buffer.Manager.OnClosed.
func (m *Metrics) CandleClosed(key model.Key, c model.Candle) {
	m.CandlesClosed.WithLabelValues(string(key.Timeframe)).Inc()
	closeAt := c.OpenTime.Add(key.Timeframe.Duration())
	m.CandleLag.Set(m.now().Sub(closeAt).Seconds())
}

// CandleDropped matches buffer.Manager.OnDropped.
func (m *Metrics) CandleDropped(key model.Key, _ model.Candle) {
	m.CandlesDropped.WithLabelValues(string(key.Timeframe)).Inc()
}

// GapDetected matches buffer.Manager.OnStale.
func (m *Metrics) GapDetected(key model.Key, _, _ time.Time) {
	m.BufferStale.WithLabelValues(string(key.Timeframe)).Inc()
}

// Backfilled matches marketdata.Supervisor.OnBackfill. A backfill that found
// nothing newer upstream counts as a skip.
func (m *Metrics) Backfilled(_ model.Key, _ int, err error) {
	label := result(err)
	if errors.Is(err, model.ErrBackfillNotNewer) {
		label = "skipped"
	}
	m.Backfills.WithLabelValues(label).Inc()
}

// Reconnected matches marketdata.Supervisor.OnReconnect.
func (m *Metrics) Reconnected(key model.Key, _ error) {
	m.Reconnects.WithLabelValues(string(key.Timeframe)).Inc()
}

func (m *Metrics) CacheHit()  { m.CacheRequests.WithLabelValues("hit").Inc() }
func (m *Metrics) CacheMiss() { m.CacheRequests.WithLabelValues("miss").Inc() }

func (m *Metrics) CacheEvicted(n int) { m.CacheEvictions.Add(float64(n)) }

func (m *Metrics) Computed(d time.Duration, err error) {
	m.ComputeDur.WithLabelValues(result(err)).Observe(d.Seconds())
}

// StageDone records one orchestration stage.
func (m *Metrics) StageDone(stage string, d time.Duration, err error) {
	m.StageDur.WithLabelValues(stage, result(err)).Observe(d.Seconds())
}

// RunDone matches pipeline.Runner.OnRun.
func (m *Metrics) RunDone(outcome string, d time.Duration) {
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDur.Observe(d.Seconds())
}

func (m *Metrics) OutcomeEvaluated(outcome string) {
	m.Outcomes.WithLabelValues(outcome).Inc()
}

// Committed matches sqlite.Writer.OnCommit.
func (m *Metrics) Committed(_ int, d time.Duration, err error) {
	m.SQLiteCommitDur.Observe(d.Seconds())
	if err != nil {
		m.SQLiteErrors.Inc()
	}
}

// BreakerState records a Redis circuit breaker transition; states are the
// integer values of redis.State.
func (m *Metrics) BreakerState(to int, tripped bool) {
	m.RedisBreakerState.Set(float64(to))
	if tripped {
		m.RedisBreakerTrips.Inc()
	}
}

// ObserveEvictions exports total, e.g. buffer.Manager.Evicted, as a counter
// read at scrape time.
func (m *Metrics) ObserveEvictions(reg prometheus.Registerer, total func() uint64) {
	m.BufferEvictions = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Name: "buffer_evictions_total",
		Help: "Closed candles evicted from full buffer windows",
	}, func() float64 { return float64(total()) })
	reg.MustRegister(m.BufferEvictions)
}

func (m *Metrics) SnapshotHeld(model.Key) { m.RedisHeld.Inc() }
func (m *Metrics) SnapshotsFlushed(n int) { m.RedisFlushed.Add(float64(n)) }
