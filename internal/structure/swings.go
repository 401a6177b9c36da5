package structure

import "github.com/preet1249/AI-Trading-ML/internal/model"

// swingAt reports whether candle i is a swing of the given kind. A swing must
// strictly exceed the order candles on its left and every available candle
// (up to order) on its right. It is confirmed once order candles exist on
// the right.
func swingAt(cs []model.Candle, i, order int, kind model.SwingKind) (ok, confirmed bool) {
	if i < order || i >= len(cs) {
		return false, false
	}
	v := extreme(cs[i], kind)
	for j := i - order; j < i; j++ {
		if !beyond(v, extreme(cs[j], kind), kind) {
			return false, false
		}
	}
	right := i + order
	if right > len(cs)-1 {
		right = len(cs) - 1
	}
	for j := i + 1; j <= right; j++ {
		if !beyond(v, extreme(cs[j], kind), kind) {
			return false, false
		}
	}
	return true, i+order <= len(cs)-1
}

func extreme(c model.Candle, kind model.SwingKind) float64 {
	if kind == model.SwingHigh {
		return c.High
	}
	return c.Low
}

// beyond reports whether a is strictly more extreme than b for kind.
func beyond(a, b float64, kind model.SwingKind) bool {
	if kind == model.SwingHigh {
		return a > b
	}
	return a < b
}

func newSwing(cs []model.Candle, i int, kind model.SwingKind, confirmed bool) model.Swing {
	return model.Swing{
		Kind:      kind,
		Price:     extreme(cs[i], kind),
		Time:      cs[i].OpenTime,
		Confirmed: confirmed,
		Index:     i,
	}
}

// FindSwings returns every confirmed and provisional swing in index order.
// For each index highs come before lows.
func FindSwings(cs []model.Candle, order int) []model.Swing {
	var out []model.Swing
	for i := order; i < len(cs); i++ {
		for _, kind := range []model.SwingKind{model.SwingHigh, model.SwingLow} {
			if ok, confirmed := swingAt(cs, i, order, kind); ok {
				out = append(out, newSwing(cs, i, kind, confirmed))
			}
		}
	}
	return out
}

// retain keeps the newest max confirmed swings per kind plus every
// provisional swing, preserving index order.
func retain(swings []model.Swing, max int) []model.Swing {
	count := map[model.SwingKind]int{}
	keep := make([]bool, len(swings))
	for i := len(swings) - 1; i >= 0; i-- {
		s := swings[i]
		if !s.Confirmed {
			keep[i] = true
			continue
		}
		if count[s.Kind] < max {
			count[s.Kind]++
			keep[i] = true
		}
	}
	out := make([]model.Swing, 0, len(swings))
	for i, s := range swings {
		if keep[i] {
			out = append(out, s)
		}
	}
	return out
}

// confirmedOf filters confirmed swings of one kind.
func confirmedOf(swings []model.Swing, kind model.SwingKind) []model.Swing {
	var out []model.Swing
	for _, s := range swings {
		if s.Confirmed && s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
