package model

import "time"

// Status discriminates every pipeline section.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Trend is the structural trend label.
type Trend string

const (
	TrendBullish  Trend = "bullish"
	TrendBearish  Trend = "bearish"
	TrendSideways Trend = "sideways"
)

// Direction tags structure events.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// Trend converts a direction into the matching trend label.
func (d Direction) Trend() Trend {
	if d == Bullish {
		return TrendBullish
	}
	return TrendBearish
}

type MACD struct {
	Line   float64 `json:"line"`
	Signal float64 `json:"signal"`
	Hist   float64 `json:"hist"`
}

// IndicatorSet is the latest value of each indicator for one window.
type IndicatorSet struct {
	RSI14 float64 `json:"rsi14"`
	MACD  MACD    `json:"macd"`
	EMA20 float64 `json:"ema20"`
	ATR14 float64 `json:"atr14"`
}

type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

type Swing struct {
	Kind      SwingKind `json:"kind"`
	Price     float64   `json:"price"`
	Time      time.Time `json:"timestamp"`
	Confirmed bool      `json:"confirmed"`
	Index     int       `json:"-"`
}

type EventKind string

const (
	EventBOS   EventKind = "BOS"
	EventCHOCH EventKind = "CHOCH"
)

// StructureEvent is a BOS or CHOCH. Time is the close candle that emitted it.
type StructureEvent struct {
	Kind      EventKind `json:"kind"`
	Direction Direction `json:"direction"`
	Reference Swing     `json:"reference_swing"`
	Time      time.Time `json:"timestamp"`
}

type LiquidityPool struct {
	Kind   SwingKind `json:"kind"`
	Price  float64   `json:"price"`
	Swings []Swing   `json:"contributing_swings"`
}

type OrderBlockType string

const (
	Demand OrderBlockType = "demand"
	Supply OrderBlockType = "supply"
)

type OrderBlock struct {
	Type       OrderBlockType `json:"type"`
	High       float64        `json:"zone_high"`
	Low        float64        `json:"zone_low"`
	OriginTime time.Time      `json:"origin_timestamp"`
}

// Mid returns the midpoint of the block.
func (o OrderBlock) Mid() float64 { return (o.High + o.Low) / 2 }

type ZoneType string

const (
	ZoneSupport    ZoneType = "support"
	ZoneResistance ZoneType = "resistance"
	ZoneDemand     ZoneType = "demand"
	ZoneSupply     ZoneType = "supply"
)

type ZoneRange struct {
	Type      ZoneType  `json:"type"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Timeframe Timeframe `json:"timeframe,omitempty"`
}

// FibLevel is one retracement or extension price.
type FibLevel struct {
	Ratio float64 `json:"ratio"`
	Price float64 `json:"price"`
}

type Fibonacci struct {
	Trend  Trend      `json:"trend"`
	High   float64    `json:"high"`
	Low    float64    `json:"low"`
	Levels []FibLevel `json:"levels"`
}

// Pivots are classic floor pivots from the last closed candle.
type Pivots struct {
	PP float64 `json:"pp"`
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	R3 float64 `json:"r3"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
	S3 float64 `json:"s3"`
}

type FairValueGap struct {
	Direction Direction `json:"direction"`
	Top       float64   `json:"top"`
	Bottom    float64   `json:"bottom"`
	Time      time.Time `json:"timestamp"`
}

// TimeframeBias summarises a secondary timeframe.
type TimeframeBias struct {
	Timeframe Timeframe `json:"timeframe"`
	Status    Status    `json:"status"`
	Trend     Trend     `json:"trend"`
	RSI14     float64   `json:"rsi14"`
}

// Snapshot is the full technical-analysis result for one symbol.
// It is never mutated after the analyzer returns it.
type Snapshot struct {
	Symbol          string      `json:"symbol"`
	Timeframe       Timeframe   `json:"timeframe"`
	Timeframes      []Timeframe `json:"timeframes"`
	Fingerprint     string      `json:"fingerprint"`
	Status          Status      `json:"status"`
	DegradedReasons []string    `json:"degraded_reasons,omitempty"`
	Candles         int         `json:"candles"`
	LastClose       float64     `json:"last_close"`
	ComputedAt      time.Time   `json:"computed_at"`

	Indicators  IndicatorSet     `json:"indicators"`
	Swings      []Swing          `json:"swings"`
	Events      []StructureEvent `json:"events"`
	Liquidity   []LiquidityPool  `json:"liquidity"`
	OrderBlocks []OrderBlock     `json:"order_blocks"`
	Zones       []ZoneRange      `json:"zones"`
	Trend       Trend            `json:"trend"`

	Fibonacci     *Fibonacci      `json:"fibonacci,omitempty"`
	Pivots        *Pivots         `json:"pivots,omitempty"`
	FairValueGaps []FairValueGap  `json:"fair_value_gaps,omitempty"`
	Confluence    []TimeframeBias `json:"confluence,omitempty"`
}

// Degraded reports whether the snapshot was built from stale or short data.
func (s *Snapshot) Degraded() bool { return s.Status == StatusDegraded }

// VolatilityRatio is ATR14 divided by the last close, or 0 when unknown.
func (s *Snapshot) VolatilityRatio() float64 {
	if s.LastClose <= 0 || s.Indicators.ATR14 <= 0 {
		return 0
	}
	return s.Indicators.ATR14 / s.LastClose
}

// LatestEvent returns the most recent event of the given kind, or nil.
func (s *Snapshot) LatestEvent(kind EventKind) *StructureEvent {
	for i := len(s.Events) - 1; i >= 0; i-- {
		if s.Events[i].Kind == kind {
			ev := s.Events[i]
			return &ev
		}
	}
	return nil
}
