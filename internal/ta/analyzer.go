// Package ta turns buffered candles into technical-analysis snapshots.
//
// The Analyzer copies every buffer it needs once, fingerprints the copies and
// asks the Result Cache for a snapshot under that fingerprint. Indicator and
// structure computation only ever runs on those copies.
package ta

import (
	"context"
	"errors"
	"fmt"

	"github.com/preet1249/AI-Trading-ML/internal/buffer"
	"github.com/preet1249/AI-Trading-ML/internal/indicator"
	"github.com/preet1249/AI-Trading-ML/internal/model"
	"github.com/preet1249/AI-Trading-ML/internal/structure"
	"github.com/preet1249/AI-Trading-ML/internal/tacache"
)

// Source is the read side of the buffer manager.
type Source interface {
	View(key model.Key) (buffer.View, error)
}

// DeepScanConfig loosens zone detection for the DEEP_ZONE_SCAN stage.
type DeepScanConfig struct {
	ZoneATRFactor  float64 `yaml:"zone_atr_factor" split_words:"true"`
	MinZoneCandles int     `yaml:"min_zone_candles" split_words:"true"`
	MaxZones       int     `yaml:"max_zones" split_words:"true"`
}

// Config selects the timeframe set. Timeframes[0] is the primary frame.
type Config struct {
	Timeframes []model.Timeframe `yaml:"timeframes"`
	DeepScan   DeepScanConfig    `yaml:"deep_scan" split_words:"true"`
}

func DefaultConfig() Config {
	return Config{
		Timeframes: []model.Timeframe{model.TF1m, model.TF5m, model.TF15m, model.TF1h},
		DeepScan:   DeepScanConfig{ZoneATRFactor: 0.8, MinZoneCandles: 2, MaxZones: 10},
	}
}

// Primary is the timeframe the snapshot is built on.
func (c Config) Primary() model.Timeframe {
	if len(c.Timeframes) == 0 {
		return model.TF1m
	}
	return c.Timeframes[0]
}

type Analyzer struct {
	src      Source
	cache    *tacache.Cache
	engine   *indicator.Engine
	detector *structure.Detector
	cfg      Config
}

func NewAnalyzer(src Source, cache *tacache.Cache, engine *indicator.Engine, detector *structure.Detector, cfg Config) *Analyzer {
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = DefaultConfig().Timeframes
	}
	return &Analyzer{src: src, cache: cache, engine: engine, detector: detector, cfg: cfg}
}

func (a *Analyzer) Config() Config { return a.cfg }

// views copies the buffer of every configured timeframe. Missing secondary
// buffers yield an empty view; a missing or empty primary buffer is
// model.ErrNoData.
func (a *Analyzer) views(symbol string) ([]buffer.View, error) {
	out := make([]buffer.View, 0, len(a.cfg.Timeframes))
	for i, tf := range a.cfg.Timeframes {
		key := model.NewKey(symbol, tf)
		v, err := a.src.View(key)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			v = buffer.View{Key: key}
		}
		if i == 0 && len(v.Candles) == 0 {
			return nil, fmt.Errorf("analyze %s: %w", key, model.ErrNoData)
		}
		out = append(out, v)
	}
	return out, nil
}

// Analyze returns the snapshot for symbol's current buffers. Short or stale
// data yields a degraded snapshot rather than an error. Errors are
// model.ErrNoData (nothing to analyse) and *model.ComputationError.
func (a *Analyzer) Analyze(ctx context.Context, symbol string) (*model.Snapshot, error) {
	symbol = model.NormalizeSymbol(symbol)
	views, err := a.views(symbol)
	if err != nil {
		return nil, err
	}
	fp := Fingerprint(symbol, views)
	if a.cache == nil {
		return a.build(symbol, fp, views)
	}
	return a.cache.GetOrCompute(ctx, fp, func(context.Context) (*model.Snapshot, error) {
		return a.build(symbol, fp, views)
	})
}

func (a *Analyzer) build(symbol, fp string, views []buffer.View) (*model.Snapshot, error) {
	primary := views[0]
	cs := primary.Candles
	last := cs[len(cs)-1]

	snap := &model.Snapshot{
		Symbol:      symbol,
		Timeframe:   primary.Key.Timeframe,
		Timeframes:  append([]model.Timeframe(nil), a.cfg.Timeframes...),
		Fingerprint: fp,
		Status:      model.StatusOK,
		Candles:     len(cs),
		LastClose:   last.Close,
		ComputedAt:  last.OpenTime.Add(primary.Key.Timeframe.Duration()),
	}

	ind, err := a.engine.Compute(cs)
	var short *model.InsufficientDataError
	switch {
	case errors.As(err, &short):
		snap.Status = model.StatusDegraded
		snap.DegradedReasons = append(snap.DegradedReasons, short.Error())
		ind = model.IndicatorSet{}
	case err != nil:
		return nil, fmt.Errorf("analyze %s: %w", primary.Key, err)
	}
	if primary.Stale {
		snap.Status = model.StatusDegraded
		snap.DegradedReasons = append(snap.DegradedReasons, model.ErrStaleBuffer.Error())
	}
	snap.Indicators = ind

	res := a.detector.Detect(cs, ind)
	snap.Swings = res.Swings
	snap.Events = res.Events
	snap.Liquidity = res.Liquidity
	snap.OrderBlocks = res.OrderBlocks
	snap.Zones = res.Zones
	snap.Trend = res.Trend
	snap.Fibonacci = res.Fibonacci
	snap.Pivots = res.Pivots
	snap.FairValueGaps = res.FairValueGaps

	for _, v := range views[1:] {
		bias, err := a.bias(v)
		if err != nil {
			return nil, err
		}
		snap.Confluence = append(snap.Confluence, bias)
	}
	return snap, nil
}

// bias summarises a secondary timeframe. Short data is reported as degraded.
func (a *Analyzer) bias(v buffer.View) (model.TimeframeBias, error) {
	b := model.TimeframeBias{Timeframe: v.Key.Timeframe, Status: model.StatusOK, Trend: model.TrendSideways}
	ind, err := a.engine.Compute(v.Candles)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientData) {
			b.Status = model.StatusDegraded
			return b, nil
		}
		return b, fmt.Errorf("analyze %s: %w", v.Key, err)
	}
	if v.Stale {
		b.Status = model.StatusDegraded
	}
	b.RSI14 = ind.RSI14
	b.Trend = a.detector.Detect(v.Candles, ind).Trend
	return b, nil
}
