package metrics

import (
	"testing"

	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name      string
		actual    []string
		predicted []string
		weights   []float64
		want      float64
	}{
		{"all correct", []string{"a", "b"}, []string{"a", "b"}, nil, 1},
		{"half correct", []string{"a", "b", "a", "b"}, []string{"a", "a", "a", "a"}, nil, 0.5},
		{"weighted", []string{"a", "b"}, []string{"a", "a"}, []float64{3, 1}, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accuracy(tt.actual, tt.predicted, tt.weights)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)

			report, err := Classification(tt.actual, tt.predicted, tt.weights)
			require.NoError(t, err)
			assert.Equal(t, got, report.Accuracy)
		})
	}
}

func TestAccuracyErrors(t *testing.T) {
	var dim *errors.DimensionError
	var value *errors.ValueError

	_, err := Accuracy(nil, nil, nil)
	assert.True(t, errors.As(err, &value))

	_, err = Accuracy([]string{"a"}, []string{"a", "b"}, nil)
	assert.True(t, errors.As(err, &dim))

	_, err = Classification([]string{"a"}, []string{"a"}, []float64{1, 2})
	assert.True(t, errors.As(err, &dim))
}
