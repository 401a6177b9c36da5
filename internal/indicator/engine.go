package indicator

import (
	"math"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// Params configures the indicator set.
type Params struct {
	RSIPeriod  int `yaml:"rsi_period" split_words:"true"`
	EMAPeriod  int `yaml:"ema_period" split_words:"true"`
	MACDFast   int `yaml:"macd_fast" split_words:"true"`
	MACDSlow   int `yaml:"macd_slow" split_words:"true"`
	MACDSignal int `yaml:"macd_signal" split_words:"true"`
	ATRPeriod  int `yaml:"atr_period" split_words:"true"`
	MinCandles int `yaml:"min_candles" split_words:"true"`
}

// DefaultParams returns RSI14, EMA20, MACD 12/26/9, ATR14 over at least 50 candles.
func DefaultParams() Params {
	return Params{
		RSIPeriod:  14,
		EMAPeriod:  20,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		ATRPeriod:  14,
		MinCandles: 50,
	}
}

// Engine turns a closed candle window into an IndicatorSet.
// It holds no state between calls and is safe for concurrent use.
type Engine struct {
	params Params
}

// NewEngine creates an engine with the given parameters.
func NewEngine(p Params) *Engine {
	return &Engine{params: p}
}

// Params returns the engine configuration.
func (e *Engine) Params() Params { return e.params }

// Compute calculates every indicator over candles (oldest first).
// Fewer than MinCandles returns *model.InsufficientDataError; a non-finite
// result returns *model.ComputationError.
func (e *Engine) Compute(candles []model.Candle) (model.IndicatorSet, error) {
	p := e.params
	if len(candles) < p.MinCandles {
		return model.IndicatorSet{}, &model.InsufficientDataError{Have: len(candles), Need: p.MinCandles}
	}
	closes := Closes(candles)

	var (
		set model.IndicatorSet
		err error
	)
	if set.RSI14, err = RSI(closes, p.RSIPeriod); err != nil {
		return model.IndicatorSet{}, err
	}
	if set.EMA20, err = EMA(closes, p.EMAPeriod); err != nil {
		return model.IndicatorSet{}, err
	}
	if set.MACD, err = MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal); err != nil {
		return model.IndicatorSet{}, err
	}
	if set.ATR14, err = ATR(candles, p.ATRPeriod); err != nil {
		return model.IndicatorSet{}, err
	}
	if err := checkFinite(set); err != nil {
		return model.IndicatorSet{}, err
	}
	return set, nil
}

func checkFinite(s model.IndicatorSet) error {
	vals := []struct {
		name string
		v    float64
	}{
		{"rsi", s.RSI14},
		{"ema", s.EMA20},
		{"macd_line", s.MACD.Line},
		{"macd_signal", s.MACD.Signal},
		{"macd_hist", s.MACD.Hist},
		{"atr", s.ATR14},
	}
	for _, x := range vals {
		if math.IsNaN(x.v) || math.IsInf(x.v, 0) {
			return &model.ComputationError{Indicator: x.name, Value: x.v}
		}
	}
	return nil
}
