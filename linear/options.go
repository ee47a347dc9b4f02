package linear

import "github.com/YuminosukeSato/eps/pkg/log"

// Option configures a Trainer.
type Option func(*Trainer)

// WithIntercept sets whether to fit an intercept. Defaults to true.
func WithIntercept(fit bool) Option {
	return func(t *Trainer) {
		t.intercept = fit
	}
}

// WithFallbackSolver sets the solver used when the normal equations stay
// singular after collinear columns are dropped.
func WithFallbackSolver(s Solver) Option {
	return func(t *Trainer) {
		t.fallback = s
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(t *Trainer) {
		t.logger = l
	}
}
