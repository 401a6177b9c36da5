package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	redisEnabled    bool
	redisConnected  bool
	redisLatencyMs  float64
	sqliteOK        bool
	sqliteLatencyMs float64
	lastCandle      time.Time
	lastCheckAt     time.Time
	startedAt       time.Time

	// StaleKeys lists buffers waiting for a backfill. Optional.
	StaleKeys func() []string

	now func() time.Time
}

// NewHealthStatus returns a status that has not probed anything yet.
func NewHealthStatus(redisEnabled bool) *HealthStatus {
	return &HealthStatus{
		redisEnabled: redisEnabled,
		startedAt:    time.Now(),
		now:          time.Now,
	}
}

// SetLastCandle records the newest candle activity.
func (h *HealthStatus) SetLastCandle(t time.Time) {
	h.mu.Lock()
	if t.After(h.lastCandle) {
		h.lastCandle = t
	}
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.redisConnected = err == nil
	h.redisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.lastCheckAt = h.now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.sqliteOK = err == nil
	h.sqliteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.lastCheckAt = h.now()
	h.mu.Unlock()
}

// Probe runs every dependency check once. rdb may be nil.
func (h *HealthStatus) Probe(ctx context.Context, rdb *goredis.Client, db *sql.DB) {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if rdb != nil {
		h.CheckRedis(probeCtx, rdb)
	}
	if db != nil {
		h.CheckSQLite(probeCtx, db)
	}
}

// StartLivenessChecker probes immediately and then every interval.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
	go func() {
		h.Probe(ctx, rdb, db)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Probe(ctx, rdb, db)
			}
		}
	}()
}

type HealthReport struct {
	Status          string   `json:"status"`
	Uptime          string   `json:"uptime"`
	LastCandleTime  string   `json:"last_candle_time,omitempty"`
	CandleAge       string   `json:"candle_age,omitempty"`
	RedisEnabled    bool     `json:"redis_enabled"`
	RedisConnected  bool     `json:"redis_connected"`
	RedisLatencyMs  float64  `json:"redis_latency_ms"`
	SQLiteOK        bool     `json:"sqlite_ok"`
	SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
	StaleKeys       []string `json:"stale_keys"`
	LastCheckAt     string   `json:"last_check_at"`
}

// Report summarises the current health. The service is degraded when a
// dependency is down or a buffer is stale, and unhealthy when SQLite is down.
func (h *HealthStatus) Report() (HealthReport, int) {
	var stale []string
	if h.StaleKeys != nil {
		stale = h.StaleKeys()
	}
	if stale == nil {
		stale = []string{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	now := h.now()

	r := HealthReport{
		Status:          "healthy",
		Uptime:          now.Sub(h.startedAt).Round(time.Second).String(),
		RedisEnabled:    h.redisEnabled,
		RedisConnected:  h.redisConnected,
		RedisLatencyMs:  h.redisLatencyMs,
		SQLiteOK:        h.sqliteOK,
		SQLiteLatencyMs: h.sqliteLatencyMs,
		StaleKeys:       stale,
		LastCheckAt:     h.lastCheckAt.Format(time.RFC3339),
	}
	if !h.lastCandle.IsZero() {
		r.LastCandleTime = h.lastCandle.Format(time.RFC3339)
		r.CandleAge = now.Sub(h.lastCandle).Round(time.Millisecond).String()
	}

	code := http.StatusOK
	switch {
	case !h.sqliteOK:
		r.Status, code = "unhealthy", http.StatusServiceUnavailable
	case (h.redisEnabled && !h.redisConnected) || len(stale) > 0:
		r.Status, code = "degraded", http.StatusServiceUnavailable
	}
	return r, code
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	r, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(r)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer serves the collectors gathered by reg.
func NewServer(addr string, reg prometheus.Gatherer, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
