package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Candle is one OHLCV bar. OpenTime is the bucket start (UTC).
// Closed is set by connectors that know the bar is final; buffers also
// close a candle implicitly when a newer one arrives.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	Closed   bool      `json:"closed,omitempty"`
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the candle closed below its open.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// Range returns high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Timeframe is a candle interval label such as "1m" or "4h".
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF3m  Timeframe = "3m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF2h  Timeframe = "2h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
	TF1w  Timeframe = "1w"
)

var tfDurations = map[Timeframe]time.Duration{
	TF1m:  time.Minute,
	TF3m:  3 * time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF30m: 30 * time.Minute,
	TF1h:  time.Hour,
	TF2h:  2 * time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
	TF1w:  7 * 24 * time.Hour,
}

// ParseTimeframe validates a timeframe label.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tfDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the interval length, or 0 for an unknown label.
func (tf Timeframe) Duration() time.Duration { return tfDurations[tf] }

// Valid reports whether tf is a known interval.
func (tf Timeframe) Valid() bool { return tf.Duration() > 0 }

// Align truncates t to the start of the bucket that contains it.
func (tf Timeframe) Align(t time.Time) time.Time {
	d := tf.Duration()
	if d == 0 {
		return t
	}
	return t.UTC().Truncate(d)
}

// Key identifies one rolling buffer.
type Key struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
}

// NewKey normalises the symbol to upper case.
func NewKey(symbol string, tf Timeframe) Key {
	return Key{Symbol: NormalizeSymbol(symbol), Timeframe: tf}
}

// String returns "SYMBOL:tf".
func (k Key) String() string {
	return k.Symbol + ":" + string(k.Timeframe)
}

// NormalizeSymbol upper-cases and trims a trading symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
