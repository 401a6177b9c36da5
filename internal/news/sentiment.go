package news

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

var (
	positive = wordSet("surge", "surges", "rally", "rallies", "gain", "gains", "bullish", "soar", "soars",
		"record", "high", "approval", "approved", "adoption", "inflow", "inflows", "upgrade", "beat",
		"growth", "rise", "rises", "jump", "jumps", "partnership", "breakout", "recovery", "buy")
	negative = wordSet("crash", "crashes", "plunge", "plunges", "drop", "drops", "bearish", "fall", "falls",
		"hack", "hacked", "ban", "lawsuit", "sue", "outflow", "outflows", "downgrade", "miss", "fraud",
		"selloff", "sell-off", "liquidation", "liquidations", "decline", "slump", "fear", "sell", "exploit")
)

func wordSet(ws ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(ws))
	for _, w := range ws {
		m[w] = struct{}{}
	}
	return m
}

// Score rates one text in [-1, 1] by counting lexicon hits.
func Score(text string) float64 {
	var pos, neg int
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	}) {
		if _, ok := positive[w]; ok {
			pos++
		}
		if _, ok := negative[w]; ok {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

// Label buckets a score.
func Label(score float64) string {
	switch {
	case score > 0.15:
		return "positive"
	case score < -0.15:
		return "negative"
	}
	return "neutral"
}

// Analyze averages article scores. Articles that move the score become key
// events, at most five.
func Analyze(articles []model.NewsArticle) model.NewsResult {
	res := model.NewsResult{
		Status:    model.StatusOK,
		Articles:  articles,
		KeyEvents: []string{},
	}
	if res.Articles == nil {
		res.Articles = []model.NewsArticle{}
	}
	if len(articles) == 0 {
		res.Label = "neutral"
		res.Summary = "No recent news found"
		return res
	}
	var sum float64
	for _, a := range articles {
		s := Score(a.Title + " " + a.Snippet)
		sum += s
		if s != 0 && len(res.KeyEvents) < 5 {
			res.KeyEvents = append(res.KeyEvents, a.Title)
		}
	}
	res.Sentiment = sum / float64(len(articles))
	res.Label = Label(res.Sentiment)
	res.Summary = fmt.Sprintf("%d recent articles, %s sentiment (%.2f)", len(articles), res.Label, res.Sentiment)
	return res
}
