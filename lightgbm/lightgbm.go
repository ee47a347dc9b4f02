// Package lightgbm fits gradient-boosted tree ensembles.
//
// Training encodes the prepared tables into a dense matrix, hands it to a
// booster.Trainer and translates the booster's model dump into
// evaluator.Node trees. Every fit ends with a cross-check of the translated
// evaluator against the booster's own predictions.
package lightgbm

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/YuminosukeSato/eps/core/dataset"
	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/model"
	"github.com/YuminosukeSato/eps/core/table"
	"github.com/YuminosukeSato/eps/evaluator"
	"github.com/YuminosukeSato/eps/lightgbm/booster"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/pkg/log"
	"github.com/YuminosukeSato/eps/preprocessing"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultLearningRate is the shrinkage used unless WithLearningRate is given.
	DefaultLearningRate = 0.1
	// DefaultEarlyStoppingRounds applies when a validation set exists.
	DefaultEarlyStoppingRounds = 50

	// smallData is the training size below which single-row leaves and bins
	// are allowed.
	smallData = 30
	// checkRows is the number of random draws for the cross-check.
	checkRows = 100
	// checkTolerance is the largest accepted absolute difference between
	// evaluator and booster.
	checkTolerance = 0.001
)

// Trainer は勾配ブースティング木の学習器
type Trainer struct {
	model.BaseEstimator

	learningRate  float64
	numBoostRound int
	earlyStopping int
	booster       booster.Trainer
	seed          uint64
	logger        log.Logger
}

// NewTrainer は新しい学習器を作成する
func NewTrainer(opts ...Option) *Trainer {
	t := &Trainer{
		learningRate:  DefaultLearningRate,
		earlyStopping: DefaultEarlyStoppingRounds,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = log.GetLoggerWithName("lightgbm")
	}
	if t.booster == nil {
		t.booster = booster.NewGBDT(booster.WithLogger(t.logger))
	}
	return t
}

// Result is a fitted ensemble.
type Result struct {
	Evaluator *evaluator.TreeEnsemble

	// Keys names the booster columns: numeric and categorical features in
	// training order, then one column per text term.
	Keys []feature.Key
	// Importance is the number of splits on each of Keys.
	Importance []float64
	Params     booster.Params
}

// Fit trains the booster on the prepared sets and builds the evaluator.
//
// Numeric targets are fit with the regression objective, two classes with
// binary and more with multiclass. Missing feature values are passed to the
// booster as missing: numeric ones follow the default branch and categorical
// ones the non-matching branch.
func (t *Trainer) Fit(p *dataset.Prepared) (res *Result, err error) {
	const op = "LightGBM.Fit"
	defer errors.Recover(&err, op)

	logger := t.logger.With(
		log.ModelNameKey, "LightGBM",
		log.EstimatorIDKey, t.ID(),
	)

	objective := model.Regression
	var labels *preprocessing.LabelEncoder
	if p.TargetType != feature.Numeric {
		labels = preprocessing.NewLabelEncoder()
		labels.Fit(p.Train.Label())
		switch n := len(labels.Labels()); {
		case n < 2:
			return nil, errors.NewValueError(op, "target must have at least two classes")
		case n == 2:
			objective = model.Binary
		default:
			objective = model.Multiclass
		}
	}

	enc, err := fitEncoding(p)
	if err != nil {
		return nil, err
	}
	train, err := enc.dataset(op, p.Train, labels)
	if err != nil {
		return nil, err
	}
	var valid *booster.Dataset
	if p.Validation != nil {
		if valid, err = enc.dataset(op, p.Validation, labels); err != nil {
			return nil, errors.Wrap(err, "validation set")
		}
	}

	params := t.params(objective, labels, p.Train.Size(), valid != nil)
	logger.Info("Training started",
		log.OperationKey, log.OperationFit,
		log.ObjectiveKey, string(objective),
		log.SamplesKey, p.Train.Size(),
		log.FeaturesKey, len(enc.keys),
		log.LearningRateKey, params.LearningRate,
	)

	b, err := t.booster.Train(params, train, enc.categorical(), valid)
	if err != nil {
		return nil, errors.Wrap(err, "booster")
	}
	raw, err := b.DumpJSON()
	if err != nil {
		return nil, errors.Wrap(err, "booster dump")
	}
	dump, err := booster.ParseDump(raw)
	if err != nil {
		return nil, err
	}

	tr := translator{keys: enc.keys, labels: enc.labels}
	trees, err := tr.trees(dump)
	if err != nil {
		return nil, err
	}
	var classes []string
	if labels != nil {
		classes = labels.Labels()
	}
	if objective == model.Multiclass {
		if trees, err = classMajor(trees, len(classes)); err != nil {
			return nil, err
		}
	}

	ev, err := evaluator.NewTreeEnsemble(p.Spec, objective, classes, trees, enc.settings)
	if err != nil {
		return nil, err
	}

	checkSet, checkX := p.Train, train.X
	if p.Validation != nil {
		checkSet, checkX = p.Validation, valid.X
	}
	if err := t.crossCheck(b, ev, checkSet, checkX); err != nil {
		return nil, err
	}

	t.SetFitted()
	logger.Info("Training completed",
		log.OperationKey, log.OperationFit,
		log.TreesKey, len(trees),
	)
	return &Result{
		Evaluator:  ev,
		Keys:       enc.keys,
		Importance: b.FeatureImportance(),
		Params:     params,
	}, nil
}

func (t *Trainer) params(objective model.Objective, labels *preprocessing.LabelEncoder, rows int, validation bool) booster.Params {
	p := booster.Params{
		Objective:     string(objective),
		LearningRate:  t.learningRate,
		NumBoostRound: t.numBoostRound,
	}
	if objective == model.Multiclass {
		p.NumClass = len(labels.Labels())
	}
	if rows < smallData {
		p.MinDataInLeaf = 1
		p.MinDataInBin = 1
	}
	if p.NumBoostRound == 0 {
		p.NumBoostRound = 100
		if validation {
			p.NumBoostRound = 1000
		}
	}
	if validation && t.earlyStopping > 0 {
		p.EarlyStoppingRounds = t.earlyStopping
	}
	return p
}

// crossCheck compares the evaluator with the booster on up to checkRows
// distinct rows drawn with the trainer seed. Regression compares raw values,
// binary the probability of the second class and multiclass the probability
// of the first class.
func (t *Trainer) crossCheck(b booster.Booster, ev *evaluator.TreeEnsemble, data *table.Table, x *mat.Dense) error {
	n := data.Size()
	rng := rand.New(rand.NewPCG(t.seed, t.seed))
	seen := make(map[int]struct{})
	var idx []int
	for k := 0; k < checkRows; k++ {
		i := rng.IntN(n)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
	}

	rows := make([][]float64, len(idx))
	for r, i := range idx {
		rows[r] = mat.Row(nil, i, x)
	}
	expected, err := b.Predict(rows)
	if err != nil {
		return errors.Wrap(err, "booster predict")
	}

	sample := data.Take(idx)
	actual := make([]float64, len(idx))
	classes := ev.Classes()
	switch ev.Objective() {
	case model.Regression:
		pred, err := ev.Predict(sample)
		if err != nil {
			return err
		}
		copy(actual, pred.Scores)
	default:
		probs, err := ev.PredictProbability(sample)
		if err != nil {
			return err
		}
		class := classes[0]
		if ev.Objective() == model.Binary {
			class = classes[1]
		}
		for r := range probs {
			actual[r] = probs[r][class]
		}
	}

	for r, i := range idx {
		if math.Abs(actual[r]-expected[r][0]) >= checkTolerance {
			return errors.NewEvaluatorMismatchError(i, expected[r][0], actual[r])
		}
	}
	return nil
}

// Summary lists the ten most important features as a share of all splits.
// extended is accepted for symmetry with other models.
func (r *Result) Summary(extended bool) string {
	total := floats.Sum(r.Importance)
	if total == 0 {
		return "Model needs more data for better predictions\n"
	}

	type entry struct {
		name  string
		value float64
	}
	entries := make([]entry, len(r.Keys))
	for j, k := range r.Keys {
		entries[j] = entry{name: k.String(), value: r.Importance[j]}
	}
	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].value != entries[b].value {
			return entries[a].value > entries[b].value
		}
		return entries[a].name < entries[b].name
	})

	var b strings.Builder
	b.WriteString("Most important features\n")
	for _, e := range entries[:min(10, len(entries))] {
		fmt.Fprintf(&b, "%s: %d\n", e.name, int(math.Round(100*e.value/total)))
	}
	return b.String()
}

// encoding maps table columns to booster columns.
type encoding struct {
	keys     []feature.Key
	labels   map[string]*preprocessing.LabelEncoder
	text     map[string]*preprocessing.TextEncoder
	settings evaluator.Text
}

// fitEncoding learns the category indices and the text vocabularies on the
// training set.
func fitEncoding(p *dataset.Prepared) (*encoding, error) {
	e := &encoding{
		labels:   make(map[string]*preprocessing.LabelEncoder),
		text:     make(map[string]*preprocessing.TextEncoder),
		settings: evaluator.Text{},
	}
	for _, f := range p.Spec {
		switch f.Type {
		case feature.Numeric:
			e.keys = append(e.keys, feature.FieldKey(f.Name))
		case feature.Categorical:
			values, _ := p.Train.Column(f.Name)
			le := preprocessing.NewLabelEncoder()
			le.Fit(values)
			e.labels[f.Name] = le
			e.keys = append(e.keys, feature.FieldKey(f.Name))
		}
	}
	for _, f := range p.Spec.OfType(feature.Text) {
		te, err := preprocessing.NewTextEncoder(p.Text[f.Name])
		if err != nil {
			return nil, err
		}
		values, _ := p.Train.Column(f.Name)
		te.Fit(values)
		e.text[f.Name] = te
		e.settings[f.Name] = te.Options()
		for _, term := range te.Vocabulary() {
			e.keys = append(e.keys, feature.TermKey(f.Name, term))
		}
	}
	if len(e.keys) == 0 {
		return nil, errors.NewInsufficientDataError("LightGBM.Fit", "no features left")
	}
	return e, nil
}

// categorical returns the booster columns holding category indices.
func (e *encoding) categorical() []int {
	var out []int
	for j, k := range e.keys {
		if k.Kind == feature.KindField && e.labels[k.Name] != nil {
			out = append(out, j)
		}
	}
	return out
}

// matrix encodes t. Missing numbers become NaN and missing categories -1;
// categories unseen in training get the index after the last known one.
func (e *encoding) matrix(op string, t *table.Table) (*mat.Dense, error) {
	x := mat.NewDense(t.Size(), len(e.keys), nil)
	counts := make(map[string][]map[string]int)
	for j, k := range e.keys {
		values, ok := t.Column(k.Name)
		if !ok {
			return nil, errors.NewMissingColumnError(op, k.Name)
		}
		switch {
		case k.Kind == feature.KindTerm:
			c, ok := counts[k.Name]
			if !ok {
				c = e.text[k.Name].Transform(values)
				counts[k.Name] = c
			}
			for i := range c {
				x.Set(i, j, float64(c[i][k.Value]))
			}
		case e.labels[k.Name] != nil:
			idx, err := e.labels[k.Name].Transform(values)
			if err != nil {
				return nil, err
			}
			for i, v := range idx {
				x.Set(i, j, float64(v))
			}
		default:
			for i, v := range values {
				switch v := v.(type) {
				case nil:
					x.Set(i, j, math.NaN())
				case float64:
					x.Set(i, j, v)
				default:
					return nil, errors.NewTypeMismatchError(op, k.Name, string(feature.Numeric), fmt.Sprintf("%T", v))
				}
			}
		}
	}
	return x, nil
}

// dataset encodes t with its label. Classification labels become class
// indices; a label unknown to the training set is an error.
func (e *encoding) dataset(op string, t *table.Table, labels *preprocessing.LabelEncoder) (*booster.Dataset, error) {
	x, err := e.matrix(op, t)
	if err != nil {
		return nil, err
	}
	y := make([]float64, t.Size())
	if labels == nil {
		for i, v := range t.Label() {
			f, ok := v.(float64)
			if !ok {
				return nil, errors.NewTypeMismatchError(op, "target", string(feature.Numeric), fmt.Sprintf("%T", v))
			}
			y[i] = f
		}
	} else {
		idx, err := labels.Transform(t.Label())
		if err != nil {
			return nil, err
		}
		known := len(labels.Labels())
		for i, c := range idx {
			if c < 0 || c >= known {
				return nil, errors.NewValueError(op, fmt.Sprintf("unknown label %q", feature.Stringify(t.Label()[i])))
			}
			y[i] = float64(c)
		}
	}
	return booster.NewDataset(x, y, t.Weight())
}
