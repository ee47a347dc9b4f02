package eps

import (
	"context"
	"strings"
	"testing"

	"github.com/YuminosukeSato/eps/core/dataset"
	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/model"
	"github.com/YuminosukeSato/eps/core/table"
	"github.com/YuminosukeSato/eps/evaluator"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTable(t *testing.T, cols ...table.Column) *table.Table {
	t.Helper()
	data, err := table.FromColumns(cols...)
	require.NoError(t, err)
	return data
}

func line(t *testing.T) *table.Table {
	return mustTable(t,
		table.Column{Name: "x", Values: []any{1, 2, 3, 4, 5}},
		table.Column{Name: "target", Values: []any{8, 13, 18, 23, 28}},
	)
}

func days(t *testing.T) *table.Table {
	return mustTable(t,
		table.Column{Name: "day", Values: []any{"Sunday", "Sunday", "Sunday", "Monday", "Monday"}},
		table.Column{Name: "target", Values: []any{"red", "red", "red", "blue", "blue"}},
	)
}

// doubled has enough rows to be split automatically.
func doubled(t *testing.T) *table.Table {
	var x, y []any
	for i := 0; i < 60; i++ {
		v := float64(i % 20)
		x = append(x, v)
		y = append(y, 2*v)
	}
	return mustTable(t,
		table.Column{Name: "x", Values: x},
		table.Column{Name: "target", Values: y},
	)
}

func TestTrainLinearRegression(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelInfo)
	m, err := Train(line(t), WithAlgorithm(LinearRegression), WithLogger(logger))
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("Model trained"))
	assert.Equal(t, "target", m.Target())

	lr, ok := m.Evaluator().(*evaluator.LinearRegression)
	require.True(t, ok)
	assert.InDelta(t, 3.0, lr.Coefficients().Intercept, 1e-9)
	x, ok := lr.Coefficients().Lookup(feature.FieldKey("x"))
	require.True(t, ok)
	assert.InDelta(t, 5.0, x, 1e-9)

	y, err := m.PredictOne(map[string]any{"x": 6})
	require.NoError(t, err)
	assert.InDelta(t, 33.0, y.(float64), 1e-9)

	summary, err := m.Summary(false)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(summary, "Validation"))
	assert.Contains(t, summary, "coef")
}

func TestTrainNaiveBayes(t *testing.T) {
	m, err := Train(days(t), WithAlgorithm(NaiveBayes))
	require.NoError(t, err)

	label, err := m.PredictOne(map[string]any{"day": "Tuesday"})
	require.NoError(t, err)
	assert.Equal(t, "red", label)

	probs, err := m.PredictProbability(mustTable(t, table.Column{Name: "day", Values: []any{"Tuesday"}}))
	require.NoError(t, err)
	assert.InDelta(t, 0.6, probs[0]["red"], 1e-9)
	assert.InDelta(t, 0.4, probs[0]["blue"], 1e-9)
}

func TestTrainLightGBMWithSplit(t *testing.T) {
	m, err := Train(doubled(t), WithNumBoostRound(30), WithSeed(3))
	require.NoError(t, err)
	assert.Equal(t, model.Regression, m.Evaluator().Objective())

	summary, err := m.Summary(false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(summary, "Validation RMSE: "), summary)
	assert.Contains(t, summary, "Most important features")
}

func TestPMMLRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		data  func(*testing.T) *table.Table
		query *table.Table
		opts  []Option
	}{
		{
			name:  "linear regression",
			data:  line,
			query: mustTable(t, table.Column{Name: "x", Values: []any{0, 6, 2.5}}),
			opts:  []Option{WithAlgorithm(LinearRegression)},
		},
		{
			name:  "naive bayes",
			data:  days,
			query: mustTable(t, table.Column{Name: "day", Values: []any{"Sunday", "Monday", "Tuesday"}}),
			opts:  []Option{WithAlgorithm(NaiveBayes)},
		},
		{
			name:  "lightgbm",
			data:  doubled,
			query: mustTable(t, table.Column{Name: "x", Values: []any{0, 7, 19}}),
			opts:  []Option{WithNumBoostRound(20), WithoutSplit()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Train(tt.data(t), tt.opts...)
			require.NoError(t, err)
			doc, err := m.ToPMML()
			require.NoError(t, err)
			assert.Contains(t, string(doc), `version="4.4"`)

			loaded, err := LoadPMML(doc)
			require.NoError(t, err)
			assert.Equal(t, m.Target(), loaded.Target())
			assert.Equal(t, m.Evaluator().Objective(), loaded.Evaluator().Objective())

			want, err := m.Predict(tt.query)
			require.NoError(t, err)
			got, err := loaded.Predict(tt.query)
			require.NoError(t, err)
			assert.Equal(t, want.Labels, got.Labels)
			require.Len(t, got.Scores, len(want.Scores))
			for i := range want.Scores {
				assert.InDelta(t, want.Scores[i], got.Scores[i], 1e-9)
			}

			again, err := loaded.ToPMML()
			require.NoError(t, err)
			assert.Equal(t, doc, again)

			_, err = loaded.Summary(false)
			assert.Error(t, err)
		})
	}
}

func TestEvaluateRegression(t *testing.T) {
	m, err := Train(line(t), WithAlgorithm(LinearRegression))
	require.NoError(t, err)

	// Predictions are 8 and 13: the first row is off by one and counts three
	// times.
	data := mustTable(t,
		table.Column{Name: "x", Values: []any{1, 2}},
		table.Column{Name: "target", Values: []any{9, 13}},
		table.Column{Name: "w", Values: []any{3, 1}},
	)
	ev, err := m.Evaluate(data, WithWeightColumn("w"))
	require.NoError(t, err)
	require.NotNil(t, ev.Regression)
	assert.Nil(t, ev.Classification)
	assert.InDelta(t, 0.75, ev.Regression.ME, 1e-9)
	assert.InDelta(t, 0.75, ev.Regression.MAE, 1e-9)
	assert.InDelta(t, 0.8660254037844386, ev.Regression.RMSE, 1e-9)

	ev, err = m.Evaluate(data, WithWeights([]float64{1, 1}), WithTarget("target"))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ev.Regression.ME, 1e-9)
}

func TestEvaluateClassification(t *testing.T) {
	m, err := Train(days(t), WithAlgorithm(NaiveBayes))
	require.NoError(t, err)

	ev, err := m.Evaluate(mustTable(t,
		table.Column{Name: "day", Values: []any{"Sunday", "Monday", "Tuesday"}},
		table.Column{Name: "target", Values: []any{"red", "red", "blue"}},
	))
	require.NoError(t, err)
	require.NotNil(t, ev.Classification)
	assert.InDelta(t, 1.0/3, ev.Classification.Accuracy, 1e-9)
}

func TestSummaryWithValidationSet(t *testing.T) {
	validation := mustTable(t,
		table.Column{Name: "day", Values: []any{"Sunday", "Monday"}},
		table.Column{Name: "target", Values: []any{"red", "blue"}},
	)
	m, err := Train(days(t), WithAlgorithm(NaiveBayes), WithTarget("target"), WithValidationSet(validation))
	require.NoError(t, err)

	summary, err := m.Summary(false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(summary, "Validation accuracy: 100.0%\n\n"), summary)
}

func TestFormatRMSE(t *testing.T) {
	assert.Equal(t, "0.123", formatRMSE(0.12345))
	assert.Equal(t, "12.3", formatRMSE(12.345))
	assert.Equal(t, "1000", formatRMSE(999.6))
	assert.Equal(t, "1235", formatRMSE(1234.6))
}

func TestLoadOptions(t *testing.T) {
	o, err := LoadOptions(strings.NewReader(`
algorithm: naive_bayes
target: color
smoothing: 0.5
seed: 42
split:
  column: week
  value: 10
  validation_size: 0.2
log_level: debug
text_features:
  review:
    min_occurrences: 2
`))
	require.NoError(t, err)
	assert.Equal(t, NaiveBayes, o.Algorithm)
	assert.Equal(t, "color", o.Target)
	require.NotNil(t, o.Smoothing)
	assert.Equal(t, 0.5, *o.Smoothing)
	assert.Equal(t, uint64(42), o.Seed)
	require.NotNil(t, o.Split)
	assert.Equal(t, "week", o.Split.Column)
	assert.Equal(t, 10.0, o.Split.Value)
	assert.Equal(t, 0.2, o.Split.ValidationSize)
	assert.Equal(t, 2, o.TextFeatures["review"].MinOccurrences)

	assert.Equal(t, "debug", o.LogLevel)
	assert.True(t, newOptions([]Option{WithOptions(o)}).logger.Enabled(context.Background(), log.LevelDebug))

	var value *errors.ValueError
	_, err = LoadOptions(strings.NewReader("algoritm: lightgbm\n"))
	assert.True(t, errors.As(err, &value))
	_, err = LoadOptions(strings.NewReader("log_level: verbose\n"))
	assert.True(t, errors.As(err, &value))
}

func TestWithOptions(t *testing.T) {
	o, err := LoadOptions(strings.NewReader("algorithm: linear_regression\nno_split: true\n"))
	require.NoError(t, err)

	logger, _ := log.NewTestLogger(log.LevelInfo)
	m, err := Train(line(t), WithLogger(logger), WithOptions(o), WithIntercept(false))
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("Model trained"))

	lr, ok := m.Evaluator().(*evaluator.LinearRegression)
	require.True(t, ok)
	assert.Equal(t, 0.0, lr.Coefficients().Intercept)

	got := newOptions([]Option{WithSplit(dataset.SplitOptions{ValidationSize: 0.5}), WithOptions(Options{})})
	assert.Equal(t, LightGBM, got.Algorithm)
	assert.Nil(t, got.Split)
}

func TestTrainErrors(t *testing.T) {
	var value *errors.ValueError
	var missing *errors.MissingColumnError

	_, err := Train(line(t), WithAlgorithm("svm"))
	assert.True(t, errors.As(err, &value))

	_, err = Train(days(t), WithAlgorithm(LinearRegression))
	assert.True(t, errors.As(err, &value))

	_, err = Train(line(t), WithTarget("y"))
	assert.True(t, errors.As(err, &missing))
}

func TestModelErrors(t *testing.T) {
	m, err := Train(line(t), WithAlgorithm(LinearRegression))
	require.NoError(t, err)

	var value *errors.ValueError
	_, err = m.PredictProbability(mustTable(t, table.Column{Name: "x", Values: []any{1}}))
	assert.True(t, errors.As(err, &value))

	var missing *errors.MissingColumnError
	_, err = m.Evaluate(mustTable(t, table.Column{Name: "x", Values: []any{1}}))
	assert.True(t, errors.As(err, &missing))

	var unknown *errors.UnknownModelFormatError
	_, err = LoadPMML([]byte("not a document"))
	assert.True(t, errors.As(err, &unknown))

	var notFitted *errors.NotFittedError
	_, err = (&Model{}).Predict(mustTable(t, table.Column{Name: "x", Values: []any{1}}))
	assert.True(t, errors.As(err, &notFitted))
}
