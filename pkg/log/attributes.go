// Standard attribute keys for Eps log records. Keys follow a hierarchical
// naming convention ("model.name", "data.samples") so records can be filtered
// by prefix.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the model family.
	// Examples: "LinearRegression", "NaiveBayes", "LightGBM"
	ModelNameKey = "model.name"

	// EstimatorIDKey carries the UUID assigned to each estimator instance.
	EstimatorIDKey = "estimator.id"

	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies the package emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"

	// ObjectiveKey records the tree-ensemble objective.
	ObjectiveKey = "model.objective"

	// TreesKey records the number of trees in an ensemble.
	TreesKey = "model.trees"

	// ClassesKey records the number of target classes.
	ClassesKey = "model.classes"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of rows.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features.
	FeaturesKey = "data.features"

	// ValidationSamplesKey indicates the number of rows held out for validation.
	ValidationSamplesKey = "data.validation_samples"

	// TargetKey names the target column.
	TargetKey = "data.target"

	// ColumnKey names a single column.
	ColumnKey = "data.column"

	// TextFeaturesKey lists the columns treated as free text.
	TextFeaturesKey = "data.text_features"
)

// Training details
const (
	// IterationKey records the current boosting iteration.
	IterationKey = "training.iteration"

	// RemovedColumnsKey lists design-matrix columns dropped as collinear.
	RemovedColumnsKey = "training.removed_columns"

	// RandomSeedKey records the seed used for splitting and sampling.
	RandomSeedKey = "config.random_seed"

	// LearningRateKey records the boosting learning rate.
	LearningRateKey = "hyperparams.learning_rate"

	// R2ScoreKey records the coefficient of determination.
	R2ScoreKey = "metrics.r2_score"

	// LossKey records a validation loss value.
	LossKey = "metrics.loss"
)

// Document codec
const (
	// FormatKey names the detected document layout.
	FormatKey = "pmml.format"

	// DocumentBytesKey records the size of a generated or loaded document.
	DocumentBytesKey = "pmml.bytes"

	// CountsKey records per-class count totals read from a document.
	CountsKey = "pmml.counts"
)

// Standard attribute value constants.
const (
	OperationFit      = "fit"
	OperationPredict  = "predict"
	OperationEvaluate = "evaluate"
	OperationGenerate = "generate"
	OperationLoad     = "load"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseInference  = "inference"
)
