package structure

import (
	"sort"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// LiquidityPools groups confirmed swings of the same kind whose prices lie
// within tolerance (a fraction of price) of the cluster's lowest member.
// Clusters with at least two swings are reported at their mean price,
// highs first, each side ordered by price.
func LiquidityPools(swings []model.Swing, tolerance float64) []model.LiquidityPool {
	var out []model.LiquidityPool
	for _, kind := range []model.SwingKind{model.SwingHigh, model.SwingLow} {
		side := confirmedOf(swings, kind)
		sort.SliceStable(side, func(i, j int) bool { return side[i].Price < side[j].Price })

		var cluster []model.Swing
		flush := func() {
			if len(cluster) >= 2 {
				out = append(out, pool(kind, cluster))
			}
			cluster = nil
		}
		for _, s := range side {
			if len(cluster) > 0 && s.Price-cluster[0].Price > tolerance*cluster[0].Price {
				flush()
			}
			cluster = append(cluster, s)
		}
		flush()
	}
	return out
}

func pool(kind model.SwingKind, members []model.Swing) model.LiquidityPool {
	sum := 0.0
	for _, s := range members {
		sum += s.Price
	}
	cp := make([]model.Swing, len(members))
	copy(cp, members)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Index < cp[j].Index })
	return model.LiquidityPool{Kind: kind, Price: sum / float64(len(members)), Swings: cp}
}

// poolZones turns pools into support (lows) and resistance (highs) ranges.
func poolZones(pools []model.LiquidityPool) []model.ZoneRange {
	out := make([]model.ZoneRange, 0, len(pools))
	for _, p := range pools {
		hi, lo := p.Swings[0].Price, p.Swings[0].Price
		for _, s := range p.Swings[1:] {
			if s.Price > hi {
				hi = s.Price
			}
			if s.Price < lo {
				lo = s.Price
			}
		}
		zt := model.ZoneSupport
		if p.Kind == model.SwingHigh {
			zt = model.ZoneResistance
		}
		out = append(out, model.ZoneRange{Type: zt, High: hi, Low: lo})
	}
	return out
}
