package structure

import "github.com/preet1249/AI-Trading-ML/internal/model"

// tracker replays closed candles oldest first. Swings enter the structure
// on the candle that confirms them, so the result for a prefix of the
// window never changes when more candles are appended.
type tracker struct {
	highs, lows []model.Swing
	state       model.Trend
	enough      bool
	choch       *model.Direction
	brokenHigh  int
	brokenLow   int
	events      []model.StructureEvent
}

func newTracker() *tracker {
	return &tracker{state: model.TrendSideways, brokenHigh: -1, brokenLow: -1}
}

// walk returns the BOS/CHOCH events and the prevailing trend after the last
// candle. enough is false when fewer than two confirmed swings exist per side.
func walk(cs []model.Candle, order int) (events []model.StructureEvent, trend model.Trend, enough bool) {
	tr := newTracker()
	for t := range cs {
		var bos []model.StructureEvent
		if i := t - order; i >= order {
			for _, kind := range []model.SwingKind{model.SwingHigh, model.SwingLow} {
				ok, confirmed := swingAt(cs[:t+1], i, order, kind)
				if !ok || !confirmed {
					continue
				}
				s := newSwing(cs, i, kind, true)
				if ev, ok := tr.bos(s, cs[t]); ok {
					bos = append(bos, ev)
				}
				tr.add(s)
			}
		}
		// CHOCH dominates any BOS raised on the same candle.
		if ev, ok := tr.chochAt(cs[t]); ok {
			tr.events = append(tr.events, ev)
			continue
		}
		tr.events = append(tr.events, bos...)
	}
	return tr.events, tr.state, tr.enough
}

// bos checks a newly confirmed swing against the trend in force before it.
func (tr *tracker) bos(s model.Swing, at model.Candle) (model.StructureEvent, bool) {
	switch {
	case tr.state == model.TrendBullish && s.Kind == model.SwingHigh && len(tr.highs) > 0:
		if s.Price > tr.highs[len(tr.highs)-1].Price {
			return model.StructureEvent{Kind: model.EventBOS, Direction: model.Bullish, Reference: s, Time: at.OpenTime}, true
		}
	case tr.state == model.TrendBearish && s.Kind == model.SwingLow && len(tr.lows) > 0:
		if s.Price < tr.lows[len(tr.lows)-1].Price {
			return model.StructureEvent{Kind: model.EventBOS, Direction: model.Bearish, Reference: s, Time: at.OpenTime}, true
		}
	}
	return model.StructureEvent{}, false
}

func (tr *tracker) add(s model.Swing) {
	if s.Kind == model.SwingHigh {
		tr.highs = append(tr.highs, s)
	} else {
		tr.lows = append(tr.lows, s)
	}
	c, enough := ClassifyTrend(tr.highs, tr.lows)
	tr.enough = enough
	switch {
	case c != model.TrendSideways:
		tr.state = c
		tr.choch = nil
	case tr.choch != nil:
		tr.state = tr.choch.Trend()
	default:
		tr.state = model.TrendSideways
	}
}

// chochAt checks whether c closes through the most recent internal swing
// against the prevailing trend. Each swing can be broken only once.
func (tr *tracker) chochAt(c model.Candle) (model.StructureEvent, bool) {
	var (
		ref model.Swing
		dir model.Direction
	)
	switch {
	case tr.state == model.TrendBullish && len(tr.lows) > 0:
		ref = tr.lows[len(tr.lows)-1]
		if ref.Index == tr.brokenLow || c.Close >= ref.Price {
			return model.StructureEvent{}, false
		}
		tr.brokenLow = ref.Index
		dir = model.Bearish
	case tr.state == model.TrendBearish && len(tr.highs) > 0:
		ref = tr.highs[len(tr.highs)-1]
		if ref.Index == tr.brokenHigh || c.Close <= ref.Price {
			return model.StructureEvent{}, false
		}
		tr.brokenHigh = ref.Index
		dir = model.Bullish
	default:
		return model.StructureEvent{}, false
	}
	tr.state = dir.Trend()
	tr.choch = &dir
	return model.StructureEvent{Kind: model.EventCHOCH, Direction: dir, Reference: ref, Time: c.OpenTime}, true
}
