package model

import (
	"strings"
	"time"
)

// Bias is the predicted price direction.
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNeutral Bias = "NEUTRAL"
)

// ParseBias accepts the canonical labels and the UP/DOWN/SIDEWAYS aliases.
func ParseBias(s string) (Bias, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BULLISH", "UP", "LONG", "BUY":
		return BiasBullish, true
	case "BEARISH", "DOWN", "SHORT", "SELL":
		return BiasBearish, true
	case "NEUTRAL", "SIDEWAYS", "HOLD":
		return BiasNeutral, true
	}
	return "", false
}

type TakeProfit struct {
	Label string  `json:"label"`
	Price float64 `json:"price"`
}

// Prediction is the oracle's validated answer.
type Prediction struct {
	Direction   Bias         `json:"direction"`
	Confidence  int          `json:"confidence"`
	EntryPrice  float64      `json:"entry_price"`
	StopLoss    float64      `json:"stop_loss"`
	TakeProfits []TakeProfit `json:"take_profits"`
	Reasoning   string       `json:"reasoning"`
	Model       string       `json:"model,omitempty"`
}

type NewsArticle struct {
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	Link        string    `json:"link,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// NewsResult is the NEWS stage output. Sentiment is in [-1, 1].
type NewsResult struct {
	Status      Status        `json:"status"`
	Sentiment   float64       `json:"sentiment"`
	Label       string        `json:"label"`
	Articles    []NewsArticle `json:"articles"`
	KeyEvents   []string      `json:"key_events"`
	Summary     string        `json:"summary"`
	Placeholder bool          `json:"placeholder"`
}

// NeutralNews is substituted when the provider fails.
func NeutralNews(reason string) NewsResult {
	return NewsResult{
		Status:      StatusDegraded,
		Label:       "neutral",
		Articles:    []NewsArticle{},
		KeyEvents:   []string{},
		Summary:     reason,
		Placeholder: true,
	}
}

// PredictRequest is the payload handed to the prediction oracle.
type PredictRequest struct {
	Symbol    string       `json:"symbol"`
	Query     string       `json:"query"`
	Timeframe Timeframe    `json:"timeframe"`
	TAStatus  Status       `json:"ta_status"`
	TA        WireSnapshot `json:"ta"`
	LastClose float64      `json:"last_close"`
	Trend     Trend        `json:"trend"`
	Zones     []ZoneRange  `json:"deep_zones,omitempty"`
	News      NewsResult   `json:"news"`
}
