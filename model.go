package eps

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/eps/core/dataset"
	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/model"
	"github.com/YuminosukeSato/eps/core/table"
	"github.com/YuminosukeSato/eps/lightgbm"
	"github.com/YuminosukeSato/eps/linear"
	"github.com/YuminosukeSato/eps/metrics"
	"github.com/YuminosukeSato/eps/naivebayes"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/pkg/log"
	"github.com/YuminosukeSato/eps/pmml"
)

// Model is a trained or loaded model.
type Model struct {
	model.BaseEstimator

	evaluator  model.Evaluator
	target     string
	summary    func(extended bool) string
	validation *table.Table
	document   []byte
	logger     log.Logger
}

// Train fits a model on data. The target column defaults to "target" and the
// algorithm to LightGBM.
func Train(data *table.Table, opts ...Option) (m *Model, err error) {
	const op = "eps.Train"
	defer errors.Recover(&err, op)

	o := newOptions(opts)
	p, err := dataset.Prepare(data, o.dataset())
	if err != nil {
		return nil, err
	}

	m = &Model{target: p.Target, validation: p.Validation, logger: o.logger}
	m.logger = m.logger.With(log.ModelNameKey, string(o.Algorithm), log.EstimatorIDKey, m.ID())

	switch o.Algorithm {
	case LightGBM:
		lo := []lightgbm.Option{lightgbm.WithSeed(o.Seed), lightgbm.WithLogger(o.logger)}
		if o.LearningRate > 0 {
			lo = append(lo, lightgbm.WithLearningRate(o.LearningRate))
		}
		if o.NumBoostRound > 0 {
			lo = append(lo, lightgbm.WithNumBoostRound(o.NumBoostRound))
		}
		if o.EarlyStoppingRounds != nil {
			lo = append(lo, lightgbm.WithEarlyStoppingRounds(*o.EarlyStoppingRounds))
		}
		res, err := lightgbm.NewTrainer(lo...).Fit(p)
		if err != nil {
			return nil, err
		}
		m.evaluator, m.summary = res.Evaluator, res.Summary
	case LinearRegression:
		if p.TargetType != feature.Numeric {
			return nil, errors.NewValueError(op, "linear regression needs a numeric target")
		}
		lo := []linear.Option{linear.WithLogger(o.logger)}
		if o.Intercept != nil {
			lo = append(lo, linear.WithIntercept(*o.Intercept))
		}
		if o.fallback != nil {
			lo = append(lo, linear.WithFallbackSolver(o.fallback))
		}
		res, err := linear.NewTrainer(lo...).Fit(p)
		if err != nil {
			return nil, err
		}
		m.evaluator, m.summary = res.Evaluator, res.Summary
	case NaiveBayes:
		no := []naivebayes.Option{naivebayes.WithLogger(o.logger)}
		if o.Smoothing != nil {
			no = append(no, naivebayes.WithSmoothing(*o.Smoothing))
		}
		res, err := naivebayes.NewTrainer(no...).Fit(p)
		if err != nil {
			return nil, err
		}
		m.evaluator, m.summary = res.Evaluator, res.Summary
	default:
		return nil, errors.NewValueError(op, "unknown algorithm "+string(o.Algorithm))
	}

	m.SetFitted()
	m.logger.Info("Model trained",
		log.OperationKey, log.OperationFit,
		log.TargetKey, m.target,
		log.ObjectiveKey, string(m.evaluator.Objective()),
		log.FeaturesKey, len(m.evaluator.Features()),
	)
	return m, nil
}

// LoadPMML builds a model from a document. Loaded models predict and evaluate
// but have no summary.
func LoadPMML(data []byte, opts ...Option) (*Model, error) {
	o := newOptions(opts)
	doc, err := pmml.Decode(data)
	if err != nil {
		return nil, err
	}
	ev, err := pmml.LoadDocument(doc, pmml.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	m := &Model{
		evaluator: ev,
		target:    doc.Target(),
		document:  append([]byte(nil), data...),
		logger:    o.logger,
	}
	if o.Target != "" {
		m.target = o.Target
	}
	m.SetFitted()
	m.logger.Debug("Model loaded", log.OperationKey, log.OperationLoad, log.DocumentBytesKey, len(data))
	return m, nil
}

// Evaluator returns the underlying evaluator.
func (m *Model) Evaluator() model.Evaluator { return m.evaluator }

// Target returns the name of the predicted column.
func (m *Model) Target() string { return m.target }

// Predict scores every row of data.
func (m *Model) Predict(data *table.Table) (model.Predictions, error) {
	if !m.IsFitted() {
		return model.Predictions{}, errors.NewNotFittedError("Model", "Predict")
	}
	return m.evaluator.Predict(data)
}

// PredictOne scores a single record. It returns a float64 for regression
// models and a string label for classifiers.
func (m *Model) PredictOne(record map[string]any) (any, error) {
	data, err := table.FromRecords([]map[string]any{record})
	if err != nil {
		return nil, err
	}
	pred, err := m.Predict(data)
	if err != nil {
		return nil, err
	}
	return pred.Values()[0], nil
}

// PredictProbability returns the class probabilities of every row. Only
// classifiers support it.
func (m *Model) PredictProbability(data *table.Table) ([]map[string]float64, error) {
	pe, ok := m.evaluator.(model.ProbabilityEvaluator)
	if !ok || m.evaluator.Objective() == model.Regression {
		return nil, errors.NewValueError("Model.PredictProbability", "probability is only available for classification")
	}
	return pe.PredictProbability(data)
}

// Evaluation holds the metrics of a model on a labeled table. Regression
// models fill Regression and classifiers Classification.
type Evaluation struct {
	Regression     *metrics.RegressionReport
	Classification *metrics.ClassificationReport
}

// Evaluate predicts data and compares the result with its target column.
// WithTarget, WithWeightColumn and WithWeights apply; other options are
// ignored.
func (m *Model) Evaluate(data *table.Table, opts ...Option) (Evaluation, error) {
	o := newOptions(opts)
	target := m.target
	if o.Target != "" {
		target = o.Target
	}
	t, err := dataset.Extract(data, target, o.WeightColumn, o.weights)
	if err != nil {
		return Evaluation{}, err
	}
	return m.evaluate(t)
}

// evaluate scores a table whose target is its label.
func (m *Model) evaluate(t *table.Table) (Evaluation, error) {
	const op = "Model.Evaluate"
	pred, err := m.Predict(t)
	if err != nil {
		return Evaluation{}, err
	}

	if m.evaluator.Objective() == model.Regression {
		actual := make([]float64, t.Size())
		for i, v := range t.Label() {
			f, ok := v.(float64)
			if !ok {
				return Evaluation{}, errors.NewTypeMismatchError(op, m.target, string(feature.Numeric), fmt.Sprintf("%T", v))
			}
			actual[i] = f
		}
		r, err := metrics.Regression(actual, pred.Scores, t.Weight())
		if err != nil {
			return Evaluation{}, err
		}
		return Evaluation{Regression: &r}, nil
	}

	actual := make([]string, t.Size())
	for i, v := range t.Label() {
		actual[i] = feature.Stringify(v)
	}
	c, err := metrics.Classification(actual, pred.Labels, t.Weight())
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{Classification: &c}, nil
}

// Summary describes a trained model, starting with its validation metric when
// a validation set was used.
func (m *Model) Summary(extended bool) (string, error) {
	if m.summary == nil {
		return "", errors.NewValueError("Model.Summary", "summary not available for loaded models")
	}

	var prefix string
	if m.validation != nil {
		ev, err := m.evaluate(m.validation)
		if err != nil {
			return "", errors.Wrap(err, "validation set")
		}
		if ev.Regression != nil {
			prefix = fmt.Sprintf("Validation RMSE: %s\n\n", formatRMSE(ev.Regression.RMSE))
		} else {
			prefix = fmt.Sprintf("Validation accuracy: %.1f%%\n\n", 100*ev.Classification.Accuracy)
		}
	}
	return prefix + m.summary(extended), nil
}

// formatRMSE keeps three significant digits below 1000 and rounds to an
// integer above.
func formatRMSE(v float64) string {
	if r := math.Round(v); r >= 1000 {
		return fmt.Sprintf("%.0f", r)
	}
	return fmt.Sprintf("%.3g", v)
}

// ToPMML returns the model as a PMML document. Loaded models return the
// document they were loaded from.
func (m *Model) ToPMML() ([]byte, error) {
	if m.document == nil {
		var doc []byte
		err := errors.SafeExecute("Model.ToPMML", func() (err error) {
			doc, err = pmml.Generate(m.evaluator, m.target)
			return err
		})
		if err != nil {
			return nil, err
		}
		m.document = doc
		m.logger.Debug("Document generated", log.OperationKey, log.OperationGenerate, log.DocumentBytesKey, len(doc))
	}
	return append([]byte(nil), m.document...), nil
}
