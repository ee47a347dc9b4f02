package eps

import (
	"io"
	"os"

	"github.com/YuminosukeSato/eps/core/dataset"
	"github.com/YuminosukeSato/eps/core/table"
	"github.com/YuminosukeSato/eps/linear"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/pkg/log"
	"github.com/YuminosukeSato/eps/preprocessing"
	"gopkg.in/yaml.v2"
)

// Algorithm names a model family.
type Algorithm string

const (
	LightGBM         Algorithm = "lightgbm"
	LinearRegression Algorithm = "linear_regression"
	NaiveBayes       Algorithm = "naive_bayes"
)

// Options configures Train. The exported fields can be read from a YAML file
// with LoadOptions; weights, validation tables, solvers and loggers can only
// be set in code.
type Options struct {
	Algorithm    Algorithm `yaml:"algorithm"`
	Target       string    `yaml:"target"`
	WeightColumn string    `yaml:"weight_column"`

	Split        *dataset.SplitOptions                `yaml:"split"`
	NoSplit      bool                                 `yaml:"no_split"`
	TextFeatures map[string]preprocessing.TextOptions `yaml:"text_features"`
	Seed         uint64                               `yaml:"seed"`
	// LogLevel writes records at or above the level to stderr when no logger
	// is set in code.
	LogLevel string `yaml:"log_level"`

	// linear_regression
	Intercept *bool `yaml:"intercept"`
	// naive_bayes
	Smoothing *float64 `yaml:"smoothing"`
	// lightgbm
	LearningRate        float64 `yaml:"learning_rate"`
	NumBoostRound       int     `yaml:"num_boost_round"`
	EarlyStoppingRounds *int    `yaml:"early_stopping_rounds"`

	weights    []float64
	validation *table.Table
	fallback   linear.Solver
	logger     log.Logger
}

// Option configures Train and Evaluate.
type Option func(*Options)

// LoadOptions decodes training options from YAML. Unknown keys are errors.
//
//	algorithm: linear_regression
//	target: price
//	split:
//	  column: listed_at
//	  validation_size: 0.2
func LoadOptions(r io.Reader) (Options, error) {
	const op = "eps.LoadOptions"
	data, err := io.ReadAll(r)
	if err != nil {
		return Options{}, errors.Wrap(err, "read options")
	}
	var o Options
	if err := yaml.UnmarshalStrict(data, &o); err != nil {
		return Options{}, errors.NewValueError(op, err.Error())
	}
	if o.LogLevel != "" {
		if _, err := log.ToLogLevel(o.LogLevel); err != nil {
			return Options{}, errors.NewValueError(op, err.Error())
		}
	}
	if o.Split != nil && o.Split.Value != nil {
		if o.Split.Value, err = table.Normalize(o.Split.Value); err != nil {
			return Options{}, errors.Wrap(err, "split value")
		}
	}
	return o, nil
}

// WithOptions replaces the settings decoded by LoadOptions with those of o.
// Weights, validation table, solver and logger set in code are kept, and
// options listed after it still override it.
func WithOptions(o Options) Option {
	return func(dst *Options) {
		weights, validation, fallback, logger := dst.weights, dst.validation, dst.fallback, dst.logger
		algorithm := dst.Algorithm
		*dst = o
		if dst.Algorithm == "" {
			dst.Algorithm = algorithm
		}
		if o.weights == nil {
			dst.weights = weights
		}
		if o.validation == nil {
			dst.validation = validation
		}
		if o.fallback == nil {
			dst.fallback = fallback
		}
		if o.logger == nil {
			dst.logger = logger
		}
	}
}

// WithAlgorithm selects the model family. Defaults to LightGBM.
func WithAlgorithm(a Algorithm) Option {
	return func(o *Options) { o.Algorithm = a }
}

// WithTarget names the target column. Defaults to "target".
func WithTarget(name string) Option {
	return func(o *Options) { o.Target = name }
}

// WithWeightColumn names a column holding row weights.
func WithWeightColumn(name string) Option {
	return func(o *Options) { o.WeightColumn = name }
}

// WithWeights sets one weight per row.
func WithWeights(w []float64) Option {
	return func(o *Options) { o.weights = append([]float64(nil), w...) }
}

// WithSplit forces a train/validation split.
func WithSplit(s dataset.SplitOptions) Option {
	return func(o *Options) { o.Split = &s }
}

// WithoutSplit trains on every row.
func WithoutSplit() Option {
	return func(o *Options) { o.NoSplit = true }
}

// WithValidationSet evaluates on t instead of splitting the training data.
// t holds the same target and weight columns.
func WithValidationSet(t *table.Table) Option {
	return func(o *Options) { o.validation = t }
}

// WithTextFeatures declares the free-text columns and their encoder settings.
func WithTextFeatures(features map[string]preprocessing.TextOptions) Option {
	return func(o *Options) { o.TextFeatures = features }
}

// WithSeed sets the seed of the split and of the evaluator cross-check.
func WithSeed(seed uint64) Option {
	return func(o *Options) { o.Seed = seed }
}

// WithIntercept controls whether linear regression fits an intercept.
func WithIntercept(fit bool) Option {
	return func(o *Options) { o.Intercept = &fit }
}

// WithFallbackSolver sets the solver linear regression uses when the normal
// equations are singular.
func WithFallbackSolver(s linear.Solver) Option {
	return func(o *Options) { o.fallback = s }
}

// WithSmoothing sets the naive Bayes Laplace α.
func WithSmoothing(alpha float64) Option {
	return func(o *Options) { o.Smoothing = &alpha }
}

// WithLearningRate sets the boosting learning rate.
func WithLearningRate(rate float64) Option {
	return func(o *Options) { o.LearningRate = rate }
}

// WithNumBoostRound sets the maximum number of boosting iterations.
func WithNumBoostRound(n int) Option {
	return func(o *Options) { o.NumBoostRound = n }
}

// WithEarlyStoppingRounds sets the boosting early-stopping patience. Zero
// disables early stopping.
func WithEarlyStoppingRounds(n int) Option {
	return func(o *Options) { o.EarlyStoppingRounds = &n }
}

// WithLogger sets the logger passed to trainers and the document codec.
func WithLogger(l log.Logger) Option {
	return func(o *Options) { o.logger = l }
}

func newOptions(opts []Option) Options {
	o := Options{Algorithm: LightGBM}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Algorithm == "" {
		o.Algorithm = LightGBM
	}
	if o.logger == nil {
		o.logger = log.GetLoggerWithName("eps")
		if level, err := log.ToLogLevel(o.LogLevel); err == nil && o.LogLevel != "" {
			o.logger = log.NewZerologProvider(os.Stderr, level).GetLoggerWithName("eps")
		}
	}
	return o
}

func (o Options) dataset() dataset.Options {
	return dataset.Options{
		Target:       o.Target,
		WeightColumn: o.WeightColumn,
		Weights:      o.weights,
		Split:        o.Split,
		NoSplit:      o.NoSplit,
		Validation:   o.validation,
		TextFeatures: o.TextFeatures,
		Seed:         o.Seed,
	}
}
