package indicator

import (
	"math"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// Closes extracts close prices, oldest first.
func Closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// RSI returns Wilder's RSI over closes. It needs period+1 values.
func RSI(closes []float64, period int) (float64, error) {
	if need := period + 1; len(closes) < need {
		return 0, &model.InsufficientDataError{Have: len(closes), Need: need}
	}
	r := NewRSI(period)
	for _, c := range closes {
		r.Update(c)
	}
	return r.Value(), nil
}

// EMA returns the latest EMA over values.
func EMA(values []float64, period int) (float64, error) {
	s, err := EMASeries(values, period)
	if err != nil {
		return 0, err
	}
	return s[len(s)-1], nil
}

// EMASeries returns every EMA value from the seed onwards; element 0
// corresponds to values[period-1].
func EMASeries(values []float64, period int) ([]float64, error) {
	if len(values) < period || period <= 0 {
		return nil, &model.InsufficientDataError{Have: len(values), Need: period}
	}
	e := NewEMA(period)
	out := make([]float64, 0, len(values)-period+1)
	for _, v := range values {
		e.Update(v)
		if e.Ready() {
			out = append(out, e.Value())
		}
	}
	return out, nil
}

// MACD returns line = EMA(fast) - EMA(slow), signal = EMA(signal) of the
// line and hist = line - signal, all at the last value.
func MACD(closes []float64, fast, slow, signal int) (model.MACD, error) {
	if need := slow + signal - 1; len(closes) < need {
		return model.MACD{}, &model.InsufficientDataError{Have: len(closes), Need: need}
	}
	ef, es := NewEMA(fast), NewEMA(slow)
	sig := NewEMA(signal)
	var line float64
	for _, c := range closes {
		ef.Update(c)
		es.Update(c)
		if ef.Ready() && es.Ready() {
			line = ef.Value() - es.Value()
			sig.Update(line)
		}
	}
	m := model.MACD{Line: line, Signal: sig.Value()}
	m.Hist = m.Line - m.Signal
	return m, nil
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(c, prev model.Candle) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev.Close), math.Abs(c.Low-prev.Close)))
}

// ATR returns Wilder's average true range. The first candle has no previous
// close, so period+1 candles are needed.
func ATR(candles []model.Candle, period int) (float64, error) {
	if need := period + 1; len(candles) < need {
		return 0, &model.InsufficientDataError{Have: len(candles), Need: need}
	}
	s := NewSMMA(period)
	for i := 1; i < len(candles); i++ {
		s.Update(TrueRange(candles[i], candles[i-1]))
	}
	return s.Value(), nil
}
