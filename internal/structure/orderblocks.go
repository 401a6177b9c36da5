package structure

import "github.com/preet1249/AI-Trading-ML/internal/model"

// OrderBlocks finds impulses (close-to-close change beyond threshold that the
// next candle does not give back) and tags the last opposite candle within
// lookback before each one. An upward impulse yields a demand block from the
// last bearish candle; a downward impulse yields a supply block from the last
// bullish candle. The newest max blocks are returned oldest first.
func OrderBlocks(cs []model.Candle, threshold float64, lookback, max int) []model.OrderBlock {
	var out []model.OrderBlock
	lastOrigin := -1
	for k := 1; k+1 < len(cs); k++ {
		prev := cs[k-1].Close
		if prev == 0 {
			continue
		}
		chg := (cs[k].Close - prev) / prev

		var (
			typ      model.OrderBlockType
			opposite func(model.Candle) bool
		)
		switch {
		case chg > threshold && cs[k+1].Close >= cs[k].Close:
			typ, opposite = model.Demand, model.Candle.Bearish
		case chg < -threshold && cs[k+1].Close <= cs[k].Close:
			typ, opposite = model.Supply, model.Candle.Bullish
		default:
			continue
		}

		for j := k - 1; j >= 0 && j >= k-lookback; j-- {
			if !opposite(cs[j]) {
				continue
			}
			if j != lastOrigin {
				out = append(out, model.OrderBlock{
					Type:       typ,
					High:       cs[j].High,
					Low:        cs[j].Low,
					OriginTime: cs[j].OpenTime,
				})
				lastOrigin = j
			}
			break
		}
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}
