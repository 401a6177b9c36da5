package structure

import "github.com/preet1249/AI-Trading-ML/internal/model"

// ClassifyTrend labels the trend from the two most recent confirmed swings
// of each kind. ok is false when either side has fewer than two swings.
func ClassifyTrend(highs, lows []model.Swing) (trend model.Trend, ok bool) {
	if len(highs) < 2 || len(lows) < 2 {
		return model.TrendSideways, false
	}
	h1, h2 := highs[len(highs)-2].Price, highs[len(highs)-1].Price
	l1, l2 := lows[len(lows)-2].Price, lows[len(lows)-1].Price
	switch {
	case h2 > h1 && l2 > l1:
		return model.TrendBullish, true
	case h2 < h1 && l2 < l1:
		return model.TrendBearish, true
	}
	return model.TrendSideways, true
}

// emaTrend is the fallback when swing history is too short: price relative
// to the EMA.
func emaTrend(lastClose, ema float64) model.Trend {
	switch {
	case ema <= 0:
		return model.TrendSideways
	case lastClose > ema:
		return model.TrendBullish
	case lastClose < ema:
		return model.TrendBearish
	}
	return model.TrendSideways
}
