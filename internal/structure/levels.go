package structure

import "github.com/preet1249/AI-Trading-ML/internal/model"

var (
	fibRetracements = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}
	fibExtensions   = []float64{1.272, 1.618, 2.618}
)

// Fibonacci draws retracements and extensions between the most recent
// confirmed swing high and low. Bullish levels retrace down from the high,
// bearish levels up from the low. Returns nil when the trend is sideways or
// either swing is missing.
func Fibonacci(swings []model.Swing, trend model.Trend) *model.Fibonacci {
	highs, lows := confirmedOf(swings, model.SwingHigh), confirmedOf(swings, model.SwingLow)
	if trend == model.TrendSideways || len(highs) == 0 || len(lows) == 0 {
		return nil
	}
	hi, lo := highs[len(highs)-1].Price, lows[len(lows)-1].Price
	if hi <= lo {
		return nil
	}
	diff := hi - lo
	f := &model.Fibonacci{Trend: trend, High: hi, Low: lo}
	for _, r := range fibRetracements {
		p := lo + diff*r
		if trend == model.TrendBullish {
			p = hi - diff*r
		}
		f.Levels = append(f.Levels, model.FibLevel{Ratio: r, Price: p})
	}
	for _, r := range fibExtensions {
		p := lo - diff*(r-1)
		if trend == model.TrendBullish {
			p = hi + diff*(r-1)
		}
		f.Levels = append(f.Levels, model.FibLevel{Ratio: r, Price: p})
	}
	return f
}

// ClassicPivots computes floor pivots from one candle.
func ClassicPivots(c model.Candle) model.Pivots {
	pp := (c.High + c.Low + c.Close) / 3
	return model.Pivots{
		PP: pp,
		R1: 2*pp - c.Low,
		S1: 2*pp - c.High,
		R2: pp + (c.High - c.Low),
		S2: pp - (c.High - c.Low),
		R3: c.High + 2*(pp-c.Low),
		S3: c.Low - 2*(c.High-pp),
	}
}

// FairValueGaps scans the last lookback candles for three-candle imbalances
// and returns the newest max, oldest first.
func FairValueGaps(cs []model.Candle, lookback, max int) []model.FairValueGap {
	if lookback > 0 && len(cs) > lookback {
		cs = cs[len(cs)-lookback:]
	}
	var out []model.FairValueGap
	for i := 1; i+1 < len(cs); i++ {
		prev, next := cs[i-1], cs[i+1]
		if prev.High < next.Low {
			out = append(out, model.FairValueGap{Direction: model.Bullish, Top: next.Low, Bottom: prev.High, Time: cs[i].OpenTime})
		}
		if prev.Low > next.High {
			out = append(out, model.FairValueGap{Direction: model.Bearish, Top: prev.Low, Bottom: next.High, Time: cs[i].OpenTime})
		}
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}
