// Package model defines the contracts shared by every model family: the
// prediction-time Evaluator and the estimator lifecycle state.
package model

import (
	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/table"
)

// Objective is the task a model was fit for.
type Objective string

const (
	Regression Objective = "regression"
	Binary     Objective = "binary"
	Multiclass Objective = "multiclass"
)

// Predictions holds one result per input row: Scores for regression models,
// Labels for classifiers.
type Predictions struct {
	Scores []float64
	Labels []string
}

// Len returns the number of predicted rows.
func (p Predictions) Len() int {
	if p.Labels != nil {
		return len(p.Labels)
	}
	return len(p.Scores)
}

// Values returns the predictions as table values, convenient for metrics and
// for attaching predictions to a table.
func (p Predictions) Values() []any {
	out := make([]any, p.Len())
	for i := range out {
		if p.Labels != nil {
			out[i] = p.Labels[i]
		} else {
			out[i] = p.Scores[i]
		}
	}
	return out
}

// Evaluator scores table rows with fitted parameters. Evaluators are immutable
// once built and are independent of how their parameters were produced.
type Evaluator interface {
	// Features returns the inputs the evaluator reads, in training order.
	Features() feature.Spec
	// Objective reports how raw scores are post-processed.
	Objective() Objective
	// Predict scores every row of t or fails for the whole batch.
	Predict(t *table.Table) (Predictions, error)
}

// ProbabilityEvaluator is implemented by classifiers.
type ProbabilityEvaluator interface {
	Evaluator
	// Classes returns the class labels in sorted order.
	Classes() []string
	// PredictProbability returns one class → probability map per row.
	PredictProbability(t *table.Table) ([]map[string]float64, error)
}
