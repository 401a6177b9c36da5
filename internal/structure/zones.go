package structure

import "github.com/preet1249/AI-Trading-ML/internal/model"

// ConsolidationZones marks runs of at least minRun candles whose range stays
// below factor*atr and which are immediately followed by a candle closing
// outside the run. An upward breakout leaves a demand zone, a downward one a
// supply zone. The newest max zones are returned oldest first.
func ConsolidationZones(cs []model.Candle, atr, factor float64, minRun, max int) []model.ZoneRange {
	if atr <= 0 || factor <= 0 {
		return nil
	}
	limit := factor * atr
	var out []model.ZoneRange
	for i := 0; i < len(cs); {
		j := i
		for j < len(cs) && cs[j].Range() < limit {
			j++
		}
		if j == i {
			i++
			continue
		}
		if j-i >= minRun && j < len(cs) {
			hi, lo := cs[i].High, cs[i].Low
			for _, c := range cs[i+1 : j] {
				if c.High > hi {
					hi = c.High
				}
				if c.Low < lo {
					lo = c.Low
				}
			}
			switch b := cs[j]; {
			case b.Close > hi:
				out = append(out, model.ZoneRange{Type: model.ZoneDemand, High: hi, Low: lo})
			case b.Close < lo:
				out = append(out, model.ZoneRange{Type: model.ZoneSupply, High: hi, Low: lo})
			}
		}
		i = j
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

// MergeZones folds overlapping zones of the same type into one, keeping the
// order of first appearance.
func MergeZones(zs []model.ZoneRange) []model.ZoneRange {
	var out []model.ZoneRange
	for _, z := range zs {
		merged := false
		for k := range out {
			o := &out[k]
			if o.Type != z.Type || z.Low > o.High || z.High < o.Low {
				continue
			}
			if z.High > o.High {
				o.High = z.High
			}
			if z.Low < o.Low {
				o.Low = z.Low
			}
			if o.Timeframe != z.Timeframe {
				o.Timeframe = ""
			}
			merged = true
			break
		}
		if !merged {
			out = append(out, z)
		}
	}
	return out
}
