// Package booster is a gradient-boosted decision tree trainer.
//
// It follows the LightGBM training algorithm closely enough that its model
// dump uses the LightGBM dump_model layout: histogram-based split finding,
// leaf-wise tree growth, the initial score folded into the first tree of each
// class and many-vs-many categorical splits.
package booster

import (
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// Objective names accepted in Params.
const (
	Regression = "regression"
	Binary     = "binary"
	Multiclass = "multiclass"
)

// Params contains the training hyperparameters. Zero values take the
// LightGBM defaults.
type Params struct {
	Objective string `json:"objective"`
	NumClass  int    `json:"num_class"`

	LearningRate        float64 `json:"learning_rate"`
	NumBoostRound       int     `json:"num_iterations"`
	EarlyStoppingRounds int     `json:"early_stopping_rounds"`

	NumLeaves           int     `json:"num_leaves"`
	MaxDepth            int     `json:"max_depth"`
	MinDataInLeaf       int     `json:"min_data_in_leaf"`
	MinSumHessianInLeaf float64 `json:"min_sum_hessian_in_leaf"`
	Lambda              float64 `json:"lambda_l2"`
	MinGainToSplit      float64 `json:"min_gain_to_split"`

	// Histogram parameters
	MaxBin       int `json:"max_bin"`
	MinDataInBin int `json:"min_data_in_bin"`

	// Categorical features
	MaxCatToOnehot  int     `json:"max_cat_to_onehot"`
	MaxCatThreshold int     `json:"max_cat_threshold"`
	CatSmooth       float64 `json:"cat_smooth"`
}

// withDefaults fills the zero fields.
func (p Params) withDefaults() Params {
	if p.LearningRate == 0 {
		p.LearningRate = 0.1
	}
	if p.NumBoostRound == 0 {
		p.NumBoostRound = 100
	}
	if p.NumLeaves == 0 {
		p.NumLeaves = 31
	}
	if p.MinDataInLeaf == 0 {
		p.MinDataInLeaf = 20
	}
	if p.MinSumHessianInLeaf == 0 {
		p.MinSumHessianInLeaf = 1e-3
	}
	if p.MaxBin == 0 {
		p.MaxBin = 255
	}
	if p.MinDataInBin == 0 {
		p.MinDataInBin = 3
	}
	if p.MaxCatToOnehot == 0 {
		p.MaxCatToOnehot = 4
	}
	if p.MaxCatThreshold == 0 {
		p.MaxCatThreshold = 32
	}
	if p.CatSmooth == 0 {
		p.CatSmooth = 10
	}
	return p
}

// Dataset is a dense feature matrix with its labels. Binary labels are 0 or
// 1 and multiclass labels are class indices.
type Dataset struct {
	X      *mat.Dense
	Label  []float64
	Weight []float64
}

// NewDataset checks that x, label and the optional weights agree in length.
func NewDataset(x *mat.Dense, label, weight []float64) (*Dataset, error) {
	rows, _ := x.Dims()
	if len(label) != rows {
		return nil, errors.NewDimensionError("booster.NewDataset", rows, len(label), 0)
	}
	if weight != nil && len(weight) != rows {
		return nil, errors.NewDimensionError("booster.NewDataset", rows, len(weight), 0)
	}
	return &Dataset{X: x, Label: label, Weight: weight}, nil
}

// Trainer fits a Booster. categorical lists the columns holding category
// indices; valid enables early stopping when non-nil.
type Trainer interface {
	Train(params Params, train *Dataset, categorical []int, valid *Dataset) (Booster, error)
}

// Booster is a fitted ensemble.
type Booster interface {
	// DumpJSON renders the model in the LightGBM dump_model layout.
	DumpJSON() ([]byte, error)
	// FeatureImportance returns the number of splits on each column.
	FeatureImportance() []float64
	// Predict returns transformed outputs per row: the raw value for
	// regression, the positive-class probability for binary and the class
	// probabilities for multiclass.
	Predict(rows [][]float64) ([][]float64, error)
}

// GBDT is the built-in Trainer.
type GBDT struct {
	logger log.Logger
}

// Option configures a GBDT.
type Option func(*GBDT)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(g *GBDT) {
		g.logger = l
	}
}

// NewGBDT creates a trainer.
func NewGBDT(opts ...Option) *GBDT {
	g := &GBDT{}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.GetLoggerWithName("lightgbm.booster")
	}
	return g
}

// Train runs the boosting loop. Each iteration fits one tree per class on
// the gradients of the current scores. With a validation set and
// EarlyStoppingRounds > 0, training stops once the validation loss has not
// improved for that many iterations and the model is truncated to the best
// iteration.
func (g *GBDT) Train(params Params, train *Dataset, categorical []int, valid *Dataset) (b Booster, err error) {
	const op = "booster.Train"
	defer errors.Recover(&err, op)

	params = params.withDefaults()
	obj, err := newObjective(params)
	if err != nil {
		return nil, err
	}
	if err := obj.check(train.Label); err != nil {
		return nil, err
	}
	n, cols := train.X.Dims()
	if n == 0 {
		return nil, errors.NewInsufficientDataError(op, "no rows")
	}
	if valid != nil {
		if _, vc := valid.X.Dims(); vc != cols {
			return nil, errors.NewDimensionError(op, cols, vc, 1)
		}
		if err := obj.check(valid.Label); err != nil {
			return nil, err
		}
	}

	isCat := make([]bool, cols)
	for _, j := range categorical {
		if j < 0 || j >= cols {
			return nil, errors.NewValueError(op, "categorical column out of range")
		}
		isCat[j] = true
	}

	bins := binFeatures(train.X, isCat, params)
	k := obj.numModels()
	m := &model{
		objective:   obj,
		numFeatures: cols,
		numClass:    k,
		shrinkage:   params.LearningRate,
		importance:  make([]float64, cols),
	}

	init := obj.initScores(train.Label, train.Weight)
	scores := make([]float64, n*k)
	for c := 0; c < k; c++ {
		for i := 0; i < n; i++ {
			scores[c*n+i] = init[c]
		}
	}
	var validScores []float64
	var stopper *earlyStopping
	if valid != nil && params.EarlyStoppingRounds > 0 {
		vn, _ := valid.X.Dims()
		validScores = make([]float64, vn*k)
		for c := 0; c < k; c++ {
			for i := 0; i < vn; i++ {
				validScores[c*vn+i] = init[c]
			}
		}
		stopper = newEarlyStopping(params.EarlyStoppingRounds)
	}

	logger := g.logger.With(log.ObjectiveKey, params.Objective)
	grad := make([]float64, n*k)
	hess := make([]float64, n*k)
	gr := &grower{params: params, bins: bins, isCat: isCat}

	for iter := 0; iter < params.NumBoostRound; iter++ {
		obj.gradients(scores, train.Label, train.Weight, grad, hess)
		for c := 0; c < k; c++ {
			t := gr.grow(grad[c*n:(c+1)*n], hess[c*n:(c+1)*n])
			t.scale(params.LearningRate)
			if iter == 0 {
				t.addBias(init[c])
			}
			m.trees = append(m.trees, t)

			for i := 0; i < n; i++ {
				scores[c*n+i] += t.predict(train.X.RawRowView(i)) - biasFor(iter, init[c])
			}
			if stopper != nil {
				vn := len(valid.Label)
				for i := 0; i < vn; i++ {
					validScores[c*vn+i] += t.predict(valid.X.RawRowView(i)) - biasFor(iter, init[c])
				}
			}
		}

		if stopper == nil {
			if iter%10 == 0 {
				logger.Debug("Training progress",
					log.IterationKey, iter,
					log.LossKey, obj.loss(scores, train.Label, train.Weight),
				)
			}
			continue
		}
		if stopper.update(iter, obj.loss(validScores, valid.Label, valid.Weight)) {
			logger.Debug("Early stopping",
				log.IterationKey, iter,
				"best_iteration", stopper.bestIteration,
				log.LossKey, stopper.bestScore,
			)
			break
		}
	}
	if stopper != nil {
		m.truncate(stopper.bestIteration + 1)
	}
	for _, t := range m.trees {
		t.countSplits(m.importance)
	}
	return m, nil
}

// biasFor is the initial score already counted in scores: the first tree of
// each class carries it, so it must not be added twice.
func biasFor(iter int, init float64) float64 {
	if iter == 0 {
		return init
	}
	return 0
}
