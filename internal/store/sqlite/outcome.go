package sqlite

import (
	"math"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// Outcome is the evaluation label of a journaled prediction.
type Outcome string

const (
	OutcomeWin     Outcome = "WIN"
	OutcomePartial Outcome = "PARTIAL"
	OutcomeLoss    Outcome = "LOSS"
	OutcomeExpired Outcome = "EXPIRED" // neutral calls are not scored
)

type Result struct {
	Outcome  Outcome
	Accuracy float64
}

// Evaluate scores e against the price observed once it fell due.
//
//   - stop hit: LOSS, 0
//   - right direction with k of n take-profits hit: WIN, 0.7*(100k/n) + 0.3*confidence
//   - right direction, no take-profit: PARTIAL, 0.5*confidence
//   - otherwise LOSS, 0
//
// Accuracy is capped at 100.
func Evaluate(e Entry, actual float64) Result {
	var bull bool
	switch e.Direction {
	case model.BiasBullish:
		bull = true
	case model.BiasBearish:
	default:
		return Result{Outcome: OutcomeExpired}
	}

	var stopHit, correct bool
	if bull {
		stopHit = e.Stop > 0 && actual <= e.Stop
		correct = actual > e.Entry
	} else {
		stopHit = e.Stop > 0 && actual >= e.Stop
		correct = actual < e.Entry
	}
	if stopHit || !correct {
		return Result{Outcome: OutcomeLoss}
	}

	hit := 0
	for _, tp := range e.TakeProfits {
		if (bull && actual >= tp.Price) || (!bull && actual <= tp.Price) {
			hit++
		}
	}
	conf := float64(e.Confidence)
	if hit == 0 {
		return Result{Outcome: OutcomePartial, Accuracy: math.Min(100, 0.5*conf)}
	}
	pct := 100 * float64(hit) / float64(len(e.TakeProfits))
	return Result{Outcome: OutcomeWin, Accuracy: math.Min(100, 0.7*pct+0.3*conf)}
}
