package oracle

import (
	"encoding/json"
	"fmt"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

const systemPrompt = `You are a professional crypto market analyst. You receive technical analysis
(indicators and market structure) and news sentiment for one symbol. Answer with a single JSON
object and nothing else:
{"direction": "BULLISH|BEARISH|NEUTRAL", "confidence": 0-100, "entry_price": number,
 "stop_loss": number, "take_profits": [{"label": "TP1", "price": number}], "reasoning": string}
Respect market structure: a recent CHOCH outweighs older BOS events. If the technical data is
marked degraded, lower your confidence.`

func userPrompt(req model.PredictRequest) (string, error) {
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("oracle: encode request: %w", err)
	}
	q := req.Query
	if q == "" {
		q = fmt.Sprintf("What is the short-term outlook for %s?", req.Symbol)
	}
	return fmt.Sprintf("Question: %s\n\nMarket data:\n%s", q, payload), nil
}
