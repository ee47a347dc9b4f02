package booster

import "math"

// earlyStopping tracks the best validation loss. Losses are minimized.
type earlyStopping struct {
	rounds          int
	bestScore       float64
	bestIteration   int
	roundsNoImprove int
}

func newEarlyStopping(rounds int) *earlyStopping {
	return &earlyStopping{rounds: rounds, bestScore: math.Inf(1)}
}

// update records the loss of an iteration and reports whether training
// should stop.
func (es *earlyStopping) update(iteration int, score float64) bool {
	if score < es.bestScore {
		es.bestScore = score
		es.bestIteration = iteration
		es.roundsNoImprove = 0
	} else {
		es.roundsNoImprove++
	}
	return es.roundsNoImprove >= es.rounds
}
