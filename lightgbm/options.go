package lightgbm

import (
	"github.com/YuminosukeSato/eps/lightgbm/booster"
	"github.com/YuminosukeSato/eps/pkg/log"
)

// Option configures a Trainer.
type Option func(*Trainer)

// WithLearningRate sets the shrinkage applied to every tree. Defaults to 0.1.
func WithLearningRate(rate float64) Option {
	return func(t *Trainer) {
		t.learningRate = rate
	}
}

// WithNumBoostRound sets the maximum number of boosting iterations. Zero
// keeps the default: 1000 with a validation set, 100 without.
func WithNumBoostRound(n int) Option {
	return func(t *Trainer) {
		t.numBoostRound = n
	}
}

// WithEarlyStoppingRounds sets how many iterations without validation
// improvement end training. Zero or a negative value disables early stopping.
func WithEarlyStoppingRounds(n int) Option {
	return func(t *Trainer) {
		t.earlyStopping = n
	}
}

// WithBooster replaces the built-in GBDT.
func WithBooster(b booster.Trainer) Option {
	return func(t *Trainer) {
		t.booster = b
	}
}

// WithSeed sets the seed of the rows sampled for the evaluator cross-check.
func WithSeed(seed uint64) Option {
	return func(t *Trainer) {
		t.seed = seed
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(t *Trainer) {
		t.logger = l
	}
}
