// Package pipeline runs the prediction graph:
//
//	START → TA → ROUTE → {NEWS | DEEP_ZONE_SCAN → NEWS} → PREDICT → END
//
// Stages receive the prior State and return a new one with more fields set.
// Cancellation is observed only between stages; work inside a stage runs
// under a per-call deadline and is never interrupted by the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"github.com/preet1249/AI-Trading-ML/internal/logger"
	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// Analyzer produces TA snapshots and deep zone scans.
type Analyzer interface {
	Analyze(ctx context.Context, symbol string) (*model.Snapshot, error)
	DeepZoneScan(ctx context.Context, symbol string) ([]model.ZoneRange, error)
}

// NewsProvider returns sentiment over articles published after since.
type NewsProvider interface {
	Sentiment(ctx context.Context, symbol string, since time.Time) (model.NewsResult, error)
}

// Oracle synthesizes the final prediction.
type Oracle interface {
	Synthesize(ctx context.Context, req model.PredictRequest) (model.Prediction, error)
}

type Config struct {
	CallTimeout         time.Duration `yaml:"call_timeout" split_words:"true"`
	VolatilityThreshold float64       `yaml:"volatility_threshold" split_words:"true"`
	PredictMaxAttempts  int           `yaml:"predict_max_attempts" split_words:"true"`
	BackoffMin          time.Duration `yaml:"backoff_min" split_words:"true"`
	BackoffMax          time.Duration `yaml:"backoff_max" split_words:"true"`
	NewsLookback        time.Duration `yaml:"news_lookback" split_words:"true"`
	Workers             int           `yaml:"workers"`
	QueueSize           int           `yaml:"queue_size" split_words:"true"`
}

func DefaultConfig() Config {
	return Config{
		CallTimeout:         10 * time.Second,
		VolatilityThreshold: 0.002,
		PredictMaxAttempts:  3,
		BackoffMin:          500 * time.Millisecond,
		BackoffMax:          4 * time.Second,
		NewsLookback:        48 * time.Hour,
		Workers:             8,
		QueueSize:           64,
	}
}

// Graph wires the stages to their collaborators.
type Graph struct {
	cfg    Config
	ta     Analyzer
	news   NewsProvider
	oracle Oracle

	now   func() time.Time
	sleep func(time.Duration)

	// OnStage observes every completed stage. Optional.
	OnStage func(stage Stage, d time.Duration, err error)
}

func NewGraph(cfg Config, ta Analyzer, news NewsProvider, oracle Oracle) *Graph {
	if cfg.PredictMaxAttempts < 1 {
		cfg.PredictMaxAttempts = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	return &Graph{cfg: cfg, ta: ta, news: news, oracle: oracle, now: time.Now, sleep: time.Sleep}
}

func (g *Graph) Config() Config { return g.cfg }

// callCtx detaches stage work from caller cancellation and bounds it by the
// per-call deadline.
func (g *Graph) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), g.cfg.CallTimeout)
}

// Run drives st from START to END. On failure the returned error is a
// *PipelineError carrying the state reached so far.
func (g *Graph) Run(ctx context.Context, st State) (State, error) {
	stage := StageTA
	for stage != StageEnd {
		if err := ctx.Err(); err != nil {
			slog.Info("pipeline abandoned", append(logger.LogWithTrace(ctx),
				slog.String("before", string(stage)), slog.String("reason", err.Error()))...)
			return st, &PipelineError{TraceID: st.TraceID, Stage: StageCancelled, Err: err, State: st}
		}

		start := g.now()
		next, out, err := g.step(ctx, stage, st)
		d := g.now().Sub(start)
		if g.OnStage != nil {
			g.OnStage(stage, d, err)
		}
		if err != nil {
			out = out.WithError(stage, err, true)
			slog.Error("pipeline stage failed", append(logger.LogWithTrace(ctx),
				slog.String("stage", string(stage)), slog.String("error", err.Error()))...)
			return out, &PipelineError{TraceID: st.TraceID, Stage: stage, Err: err, State: out}
		}
		slog.Debug("pipeline stage done", append(logger.LogWithTrace(ctx),
			slog.String("stage", string(stage)), slog.String("next", string(next)),
			slog.Duration("took", d))...)
		st, stage = out, next
	}
	return st, nil
}

func (g *Graph) step(ctx context.Context, stage Stage, st State) (Stage, State, error) {
	switch stage {
	case StageTA:
		out, err := g.runTA(ctx, st)
		return StageRoute, out, err
	case StageRoute:
		b := Route(st.TA(), g.cfg.VolatilityThreshold)
		out, err := st.WithRoute(b)
		return b.Next(), out, err
	case StageDeepZoneScan:
		out, err := g.runDeepZoneScan(ctx, st)
		return StageNews, out, err
	case StageNews:
		out, err := g.runNews(ctx, st)
		return StagePredict, out, err
	case StagePredict:
		out, err := g.runPredict(ctx, st)
		return StageEnd, out, err
	}
	return StageEnd, st, fmt.Errorf("unknown stage %q", stage)
}

// runTA stores a snapshot, degraded or not. Only an empty buffer and a
// computation error are fatal.
func (g *Graph) runTA(ctx context.Context, st State) (State, error) {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	snap, err := g.ta.Analyze(cctx, st.Symbol)
	switch {
	case err == nil:
		out, serr := st.WithTA(TASection{Status: snap.Status, Snapshot: snap})
		if serr == nil && snap.Degraded() {
			for _, r := range snap.DegradedReasons {
				out = out.WithError(StageTA, errors.New(r), false)
			}
		}
		return out, serr
	case errors.Is(err, model.ErrNoData), errors.Is(err, model.ErrComputation):
		out, _ := st.WithTA(TASection{Status: model.StatusFailed, Error: err.Error()})
		return out, err
	default:
		out, serr := st.WithTA(TASection{Status: model.StatusDegraded, Error: err.Error()})
		return out.WithError(StageTA, err, false), serr
	}
}

func (g *Graph) runDeepZoneScan(ctx context.Context, st State) (State, error) {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	zones, err := g.ta.DeepZoneScan(cctx, st.Symbol)
	if err != nil {
		st = st.WithError(StageDeepZoneScan, err, false)
		zones = nil
	}
	return st.WithDeepZones(zones)
}

// runNews falls back to neutral sentiment on any provider failure.
func (g *Graph) runNews(ctx context.Context, st State) (State, error) {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	since := g.now().Add(-g.cfg.NewsLookback)
	res, err := g.news.Sentiment(cctx, st.Symbol, since)
	if err != nil {
		if cctx.Err() != nil {
			err = &model.UpstreamError{Service: "news", Timeout: true, Retryable: true, Err: err}
		}
		slog.Warn("news unavailable, using neutral sentiment", append(logger.LogWithTrace(ctx),
			slog.String("error", err.Error()))...)
		st = st.WithError(StageNews, err, false)
		res = model.NeutralNews("news unavailable: " + err.Error())
	}
	return st.WithNews(res)
}

// runPredict calls the oracle up to PredictMaxAttempts times, backing off
// exponentially between timeouts and retryable upstream errors.
func (g *Graph) runPredict(ctx context.Context, st State) (State, error) {
	req := g.request(st)
	b := &backoff.Backoff{Min: g.cfg.BackoffMin, Max: g.cfg.BackoffMax, Factor: 2}

	var lastErr error
	for attempt := 1; attempt <= g.cfg.PredictMaxAttempts; attempt++ {
		pred, err := g.predictOnce(ctx, req)
		if err == nil {
			return st.WithPrediction(pred)
		}
		lastErr = err
		if !model.IsRetryable(err) {
			return st, fmt.Errorf("predict: %w", err)
		}
		st = st.WithError(StagePredict, fmt.Errorf("attempt %d: %w", attempt, err), false)
		if attempt < g.cfg.PredictMaxAttempts {
			d := b.Duration()
			slog.Warn("predict attempt failed, retrying", append(logger.LogWithTrace(ctx),
				slog.Int("attempt", attempt), slog.Duration("backoff", d),
				slog.String("error", err.Error()))...)
			g.sleep(d)
		}
	}
	return st, fmt.Errorf("predict: %d attempts exhausted: %w", g.cfg.PredictMaxAttempts, lastErr)
}

func (g *Graph) predictOnce(ctx context.Context, req model.PredictRequest) (model.Prediction, error) {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()
	pred, err := g.oracle.Synthesize(cctx, req)
	if err != nil && cctx.Err() == context.DeadlineExceeded && !errors.Is(err, model.ErrUpstreamTimeout) {
		err = &model.UpstreamError{Service: "oracle", Timeout: true, Retryable: true, Err: err}
	}
	return pred, err
}

func (g *Graph) request(st State) model.PredictRequest {
	req := model.PredictRequest{
		Symbol: st.Symbol,
		Query:  st.Query,
		Zones:  st.DeepZones(),
	}
	if sec := st.TA(); sec != nil {
		req.TAStatus = sec.Status
		if snap := sec.Snapshot; snap != nil {
			req.Timeframe = snap.Timeframe
			req.TA = snap.Wire()
			req.LastClose = snap.LastClose
			req.Trend = snap.Trend
		}
	}
	if n := st.News(); n != nil {
		req.News = *n
	}
	return req
}
