package model

import "time"

// WireSnapshot is the compact shape consumed by dashboards and the oracle.
// Field names are fixed; timestamps are unix milliseconds.
type WireSnapshot struct {
	RSI         float64          `json:"rsi"`
	MACD        MACD             `json:"macd"`
	EMA20       float64          `json:"ema20"`
	ATR         float64          `json:"atr"`
	Swings      []WireSwing      `json:"swings"`
	BOS         *WireEvent       `json:"bos"`
	CHOCH       *WireEvent       `json:"choch"`
	Liquidity   []float64        `json:"liquidity"`
	OrderBlocks []WireOrderBlock `json:"order_blocks"`
	Zones       []WireZone       `json:"zones"`
	Trend       Trend            `json:"trend"`
}

type WireSwing struct {
	Type  SwingKind `json:"type"`
	Price float64   `json:"price"`
	TS    int64     `json:"ts"`
}

type WireEvent struct {
	Direction Direction `json:"direction"`
	Price     float64   `json:"price"`
	TS        int64     `json:"ts"`
}

type WireOrderBlock struct {
	Type  OrderBlockType `json:"type"`
	Price float64        `json:"price"`
	TS    int64          `json:"ts"`
}

type WireZone struct {
	Type ZoneType `json:"type"`
	High float64  `json:"high"`
	Low  float64  `json:"low"`
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Wire projects the snapshot onto the wire shape. Only confirmed swings are
// included; slices are never nil so they encode as [].
func (s *Snapshot) Wire() WireSnapshot {
	w := WireSnapshot{
		RSI:         s.Indicators.RSI14,
		MACD:        s.Indicators.MACD,
		EMA20:       s.Indicators.EMA20,
		ATR:         s.Indicators.ATR14,
		Swings:      make([]WireSwing, 0, len(s.Swings)),
		Liquidity:   make([]float64, 0, len(s.Liquidity)),
		OrderBlocks: make([]WireOrderBlock, 0, len(s.OrderBlocks)),
		Zones:       make([]WireZone, 0, len(s.Zones)),
		Trend:       s.Trend,
	}
	for _, sw := range s.Swings {
		if !sw.Confirmed {
			continue
		}
		w.Swings = append(w.Swings, WireSwing{Type: sw.Kind, Price: sw.Price, TS: unixMilli(sw.Time)})
	}
	if ev := s.LatestEvent(EventBOS); ev != nil {
		w.BOS = &WireEvent{Direction: ev.Direction, Price: ev.Reference.Price, TS: unixMilli(ev.Time)}
	}
	if ev := s.LatestEvent(EventCHOCH); ev != nil {
		w.CHOCH = &WireEvent{Direction: ev.Direction, Price: ev.Reference.Price, TS: unixMilli(ev.Time)}
	}
	for _, lp := range s.Liquidity {
		w.Liquidity = append(w.Liquidity, lp.Price)
	}
	for _, ob := range s.OrderBlocks {
		w.OrderBlocks = append(w.OrderBlocks, WireOrderBlock{Type: ob.Type, Price: ob.Mid(), TS: unixMilli(ob.OriginTime)})
	}
	for _, z := range s.Zones {
		w.Zones = append(w.Zones, WireZone{Type: z.Type, High: z.High, Low: z.Low})
	}
	return w
}

// SnapshotEvent is the streamed form of a snapshot: the wire shape plus the
// identity needed to route it.
type SnapshotEvent struct {
	Symbol      string       `json:"symbol"`
	Timeframe   Timeframe    `json:"timeframe"`
	Status      Status       `json:"status"`
	Fingerprint string       `json:"fingerprint"`
	ComputedAt  int64        `json:"computed_at"`
	TA          WireSnapshot `json:"ta"`
}

func (s *Snapshot) Event() SnapshotEvent {
	return SnapshotEvent{
		Symbol:      s.Symbol,
		Timeframe:   s.Timeframe,
		Status:      s.Status,
		Fingerprint: s.Fingerprint,
		ComputedAt:  unixMilli(s.ComputedAt),
		TA:          s.Wire(),
	}
}
