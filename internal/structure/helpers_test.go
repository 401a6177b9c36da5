package structure

import (
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

type leg struct {
	to float64
	n  int
}

// mk builds a candle whose body spans 0.01 in the direction of travel so
// pivots are strict extremes of their neighbours.
func mk(i int, prevClose, close float64) model.Candle {
	open := close
	switch {
	case close > prevClose:
		open = close - 0.01
	case close < prevClose:
		open = close + 0.01
	}
	hi, lo := open, close
	if close > open {
		hi, lo = close, open
	}
	return model.Candle{
		OpenTime: t0.Add(time.Duration(i) * time.Minute),
		Open:     open, High: hi, Low: lo, Close: close,
		Volume: 1, Closed: true,
	}
}

// zigzag walks linearly through each leg's target, one candle per step.
func zigzag(start float64, legs ...leg) []model.Candle {
	cs := []model.Candle{mk(0, start, start)}
	price := start
	for _, l := range legs {
		step := (l.to - price) / float64(l.n)
		for k := 1; k <= l.n; k++ {
			next := price + step*float64(k)
			if k == l.n {
				next = l.to
			}
			cs = append(cs, mk(len(cs), cs[len(cs)-1].Close, next))
		}
		price = l.to
	}
	return cs
}

// ascendingThenReversal builds 200 candles rising in higher highs and higher
// lows, then a 5% bearish candle and one follow-through candle.
func ascendingThenReversal() []model.Candle {
	var legs []leg
	price := 100.0
	for c := 0; c < 14; c++ {
		price += 2
		legs = append(legs, leg{price, 8})
		price -= 0.9
		legs = append(legs, leg{price, 6})
	}
	price += 0.75
	legs = append(legs, leg{price, 3})
	cs := zigzag(100, legs...)

	last := cs[len(cs)-1]
	rev := last.Close * 0.95
	cs = append(cs, model.Candle{
		OpenTime: last.OpenTime.Add(time.Minute),
		Open:     last.Close, High: last.Close + 0.05, Low: rev - 0.2, Close: rev,
		Volume: 10, Closed: true,
	})
	cs = append(cs, model.Candle{
		OpenTime: last.OpenTime.Add(2 * time.Minute),
		Open:     rev, High: rev + 0.1, Low: rev - 0.5, Close: rev - 0.3,
		Volume: 5, Closed: true,
	})
	return cs
}
