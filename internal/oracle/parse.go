package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// PricePlaces is the rounding applied to every price the oracle returns.
const PricePlaces = 8

var errNoJSON = errors.New("no JSON object in answer")

type rawPrediction struct {
	Direction   string          `json:"direction"`
	Confidence  json.Number     `json:"confidence"`
	EntryPrice  json.Number     `json:"entry_price"`
	StopLoss    json.Number     `json:"stop_loss"`
	TakeProfits json.RawMessage `json:"take_profits"`
	Reasoning   string          `json:"reasoning"`
}

// extractJSON returns the outermost {...} of s, ignoring code fences and
// surrounding prose.
func extractJSON(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", errNoJSON
	}
	return s[start : end+1], nil
}

func number(n json.Number) float64 {
	if n == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	if err != nil {
		return 0
	}
	return f
}

func round(p float64) float64 {
	f, _ := decimal.NewFromFloat(p).Round(PricePlaces).Float64()
	return f
}

// takeProfits accepts [{"label","price"}] or a bare list of numbers.
func takeProfits(raw json.RawMessage) ([]model.TakeProfit, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var objs []struct {
		Label string      `json:"label"`
		Price json.Number `json:"price"`
	}
	if err := json.Unmarshal(raw, &objs); err == nil {
		out := make([]model.TakeProfit, 0, len(objs))
		for _, o := range objs {
			out = append(out, model.TakeProfit{Label: o.Label, Price: number(o.Price)})
		}
		return out, nil
	}
	var nums []json.Number
	if err := json.Unmarshal(raw, &nums); err != nil {
		return nil, fmt.Errorf("take_profits: %w", err)
	}
	out := make([]model.TakeProfit, 0, len(nums))
	for _, n := range nums {
		out = append(out, model.TakeProfit{Price: number(n)})
	}
	return out, nil
}

// Parse validates an oracle answer. Direction aliases are normalised,
// confidence is clamped to [0, 100], a missing entry falls back to lastClose,
// and take-profits are ordered by distance from entry and relabelled.
func Parse(answer string, lastClose float64) (model.Prediction, error) {
	js, err := extractJSON(answer)
	if err != nil {
		return model.Prediction{}, err
	}
	dec := json.NewDecoder(strings.NewReader(js))
	dec.UseNumber()
	var rp rawPrediction
	if err := dec.Decode(&rp); err != nil {
		return model.Prediction{}, fmt.Errorf("decode prediction: %w", err)
	}

	dir, ok := model.ParseBias(rp.Direction)
	if !ok {
		return model.Prediction{}, fmt.Errorf("unknown direction %q", rp.Direction)
	}
	conf := number(rp.Confidence)
	if conf > 0 && conf <= 1 && strings.Contains(string(rp.Confidence), ".") {
		conf *= 100
	}
	conf = math.Max(0, math.Min(100, math.Round(conf)))

	entry := number(rp.EntryPrice)
	if entry <= 0 {
		entry = lastClose
	}
	tps, err := takeProfits(rp.TakeProfits)
	if err != nil {
		return model.Prediction{}, err
	}
	kept := tps[:0]
	for _, tp := range tps {
		if tp.Price > 0 && !math.IsNaN(tp.Price) && !math.IsInf(tp.Price, 0) {
			kept = append(kept, tp)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return math.Abs(kept[i].Price-entry) < math.Abs(kept[j].Price-entry)
	})
	for i := range kept {
		kept[i].Price = round(kept[i].Price)
		kept[i].Label = fmt.Sprintf("TP%d", i+1)
	}
	if kept == nil {
		kept = []model.TakeProfit{}
	}

	return model.Prediction{
		Direction:   dir,
		Confidence:  int(conf),
		EntryPrice:  round(entry),
		StopLoss:    round(math.Max(0, number(rp.StopLoss))),
		TakeProfits: kept,
		Reasoning:   strings.TrimSpace(rp.Reasoning),
	}, nil
}
