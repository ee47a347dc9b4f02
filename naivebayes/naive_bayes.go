// Package naivebayes fits naive Bayes classifiers over categorical and
// numeric features.
package naivebayes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/YuminosukeSato/eps/core/dataset"
	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/model"
	"github.com/YuminosukeSato/eps/evaluator"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/pkg/log"
	"gonum.org/v1/gonum/stat"
)

// DefaultSmoothing is the Laplace α used unless WithSmoothing is given.
const DefaultSmoothing = 1.0

// Trainer fits a NaiveBayes evaluator.
type Trainer struct {
	model.BaseEstimator

	smoothing float64
	logger    log.Logger
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithSmoothing sets the Laplace α applied to categorical counts.
func WithSmoothing(alpha float64) Option {
	return func(t *Trainer) {
		t.smoothing = alpha
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(t *Trainer) {
		t.logger = l
	}
}

// NewTrainer returns a trainer with α = 1.
func NewTrainer(opts ...Option) *Trainer {
	t := &Trainer{smoothing: DefaultSmoothing}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = log.GetLoggerWithName("naivebayes")
	}
	return t
}

// Result is a fitted classifier.
type Result struct {
	Evaluator *evaluator.NaiveBayes
}

// Fit groups the training rows by class. Categorical features keep raw
// per-class value counts; numeric features keep the per-class mean and
// sample standard deviation.
func (t *Trainer) Fit(p *dataset.Prepared) (res *Result, err error) {
	const op = "NaiveBayes.Fit"
	defer errors.Recover(&err, op)

	if p.TargetType != feature.Categorical {
		return nil, errors.NewValueError(op, "target must be strings or booleans")
	}
	if len(p.Spec.OfType(feature.Text)) > 0 {
		return nil, errors.NewValueError(op, "text features not supported")
	}
	if p.Train.Weight() != nil {
		return nil, errors.NewValueError(op, "weight not supported")
	}
	if err := dataset.CheckTable(op, p.Train); err != nil {
		return nil, err
	}
	if p.Validation != nil {
		if err := dataset.CheckTable(op, p.Validation); err != nil {
			return nil, err
		}
	}

	logger := t.logger.With(
		log.ModelNameKey, "NaiveBayes",
		log.EstimatorIDKey, t.ID(),
	)

	labels := make([]string, p.Train.Size())
	groups := make(map[string][]int)
	for i, v := range p.Train.Label() {
		labels[i] = feature.Stringify(v)
		groups[labels[i]] = append(groups[labels[i]], i)
	}

	probs := evaluator.ProbabilityTable{
		Prior:       make(map[string]float64, len(groups)),
		Categorical: make(map[string]map[string]map[string]float64),
		Numeric:     make(map[string]map[string]evaluator.Gaussian),
		Smoothing:   t.smoothing,
	}
	for c, idx := range groups {
		probs.Prior[c] = float64(len(idx))
	}

	logger.Info("Training started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, len(labels),
		log.FeaturesKey, len(p.Spec),
		log.ClassesKey, len(groups),
	)

	for _, f := range p.Spec {
		values, _ := p.Train.Column(f.Name)
		switch f.Type {
		case feature.Categorical:
			counts := make(map[string]map[string]float64)
			for i, v := range values {
				s := feature.Stringify(v)
				if counts[s] == nil {
					counts[s] = make(map[string]float64, len(groups))
					for c := range groups {
						counts[s][c] = 0
					}
				}
				counts[s][labels[i]]++
			}
			probs.Categorical[f.Name] = counts
		case feature.Numeric:
			stats := make(map[string]evaluator.Gaussian, len(groups))
			for c, idx := range groups {
				xs := make([]float64, len(idx))
				for k, i := range idx {
					xs[k] = values[i].(float64)
				}
				stats[c] = gaussian(xs)
			}
			probs.Numeric[f.Name] = stats
		}
	}

	ev, err := evaluator.NewNaiveBayes(p.Spec, probs, nil)
	if err != nil {
		return nil, err
	}
	t.SetFitted()
	logger.Info("Training completed", log.OperationKey, log.OperationFit)
	return &Result{Evaluator: ev}, nil
}

// gaussian returns the mean and the (n-1) standard deviation; the deviation
// is 0 for fewer than two values.
func gaussian(xs []float64) evaluator.Gaussian {
	if len(xs) <= 1 {
		return evaluator.Gaussian{Mean: stat.Mean(xs, nil)}
	}
	mean, std := stat.MeanStdDev(xs, nil)
	return evaluator.Gaussian{Mean: mean, Stdev: std}
}

// Summary lists the class priors followed by the conditional statistics of
// every feature. extended is accepted for symmetry with other models.
func (r *Result) Summary(extended bool) string {
	probs := r.Evaluator.Probabilities()
	classes := r.Evaluator.Classes()

	var b strings.Builder
	for _, c := range classes {
		fmt.Fprintf(&b, "%s: %g\n", c, probs.Prior[c])
	}
	for _, f := range r.Evaluator.Features() {
		fmt.Fprintf(&b, "\n%s\n", f.Name)
		switch f.Type {
		case feature.Categorical:
			values := make([]string, 0, len(probs.Categorical[f.Name]))
			for v := range probs.Categorical[f.Name] {
				values = append(values, v)
			}
			sort.Strings(values)
			for _, c := range classes {
				for _, v := range values {
					p, _ := probs.Conditional(f.Name, v, c)
					fmt.Fprintf(&b, "  P(%s | %s): %.3f\n", v, c, p)
				}
			}
		case feature.Numeric:
			for _, c := range classes {
				g := probs.Numeric[f.Name][c]
				fmt.Fprintf(&b, "  %s: mean %.3g, stdev %.3g\n", c, g.Mean, g.Stdev)
			}
		}
	}
	return b.String()
}
