// Package structure detects market structure on a window of closed candles:
// swings, trend, BOS/CHOCH events, liquidity pools, order blocks, supply and
// demand zones, plus fibonacci, pivot and fair-value-gap levels.
//
// Every detector is a pure function of its input. Callers must pass closed
// candles only; the forming candle is never part of a window.
package structure

import "github.com/preet1249/AI-Trading-ML/internal/model"

// Config holds the detection thresholds. All of them are tunables, not
// fixed semantics.
type Config struct {
	SwingOrder         int     `yaml:"swing_order" split_words:"true"`
	MaxSwings          int     `yaml:"max_swings" split_words:"true"`
	LiquidityTolerance float64 `yaml:"liquidity_tolerance" split_words:"true"`
	ImpulseThreshold   float64 `yaml:"impulse_threshold" split_words:"true"`
	OrderBlockLookback int     `yaml:"order_block_lookback" split_words:"true"`
	MaxOrderBlocks     int     `yaml:"max_order_blocks" split_words:"true"`
	ZoneATRFactor      float64 `yaml:"zone_atr_factor" split_words:"true"`
	MinZoneCandles     int     `yaml:"min_zone_candles" split_words:"true"`
	MaxZones           int     `yaml:"max_zones" split_words:"true"`
	FVGLookback        int     `yaml:"fvg_lookback" split_words:"true"`
	MaxFVGs            int     `yaml:"max_fvgs" split_words:"true"`
}

// DefaultConfig returns order 5, 10 swings per side, 0.1% pools,
// 1.5% impulses and k=0.5 zones.
func DefaultConfig() Config {
	return Config{
		SwingOrder:         5,
		MaxSwings:          10,
		LiquidityTolerance: 0.001,
		ImpulseThreshold:   0.015,
		OrderBlockLookback: 5,
		MaxOrderBlocks:     5,
		ZoneATRFactor:      0.5,
		MinZoneCandles:     3,
		MaxZones:           5,
		FVGLookback:        50,
		MaxFVGs:            5,
	}
}

// Result is everything the detector derives from one window.
type Result struct {
	Swings        []model.Swing
	Events        []model.StructureEvent
	Liquidity     []model.LiquidityPool
	OrderBlocks   []model.OrderBlock
	Zones         []model.ZoneRange
	Trend         model.Trend
	Fibonacci     *model.Fibonacci
	Pivots        *model.Pivots
	FairValueGaps []model.FairValueGap
}

// Detector runs every structure detector with one configuration.
type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

func (d *Detector) Config() Config { return d.cfg }

// Detect analyses cs (closed candles, oldest first). ind supplies ATR for
// zone width and EMA for the trend fallback used while fewer than two
// swings per side are confirmed.
func (d *Detector) Detect(cs []model.Candle, ind model.IndicatorSet) Result {
	cfg := d.cfg
	res := Result{Trend: model.TrendSideways}
	if len(cs) == 0 {
		return res
	}

	res.Swings = retain(FindSwings(cs, cfg.SwingOrder), cfg.MaxSwings)

	events, trend, enough := walk(cs, cfg.SwingOrder)
	if !enough && trend == model.TrendSideways {
		trend = emaTrend(cs[len(cs)-1].Close, ind.EMA20)
	}
	res.Events = events
	res.Trend = trend

	res.Liquidity = LiquidityPools(res.Swings, cfg.LiquidityTolerance)
	res.OrderBlocks = OrderBlocks(cs, cfg.ImpulseThreshold, cfg.OrderBlockLookback, cfg.MaxOrderBlocks)
	res.Zones = append(
		ConsolidationZones(cs, ind.ATR14, cfg.ZoneATRFactor, cfg.MinZoneCandles, cfg.MaxZones),
		poolZones(res.Liquidity)...,
	)

	res.Fibonacci = Fibonacci(res.Swings, res.Trend)
	pv := ClassicPivots(cs[len(cs)-1])
	res.Pivots = &pv
	res.FairValueGaps = FairValueGaps(cs, cfg.FVGLookback, cfg.MaxFVGs)
	return res
}
