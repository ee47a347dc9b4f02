package metrics

import (
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/eps/pkg/errors"
)

// ClassificationReport は分類モデルの評価結果です。
type ClassificationReport struct {
	Accuracy float64 `yaml:"accuracy"`
}

// Classification は正解率をまとめて計算する
func Classification(actual, predicted []string, weights []float64) (ClassificationReport, error) {
	acc, err := Accuracy(actual, predicted, weights)
	if err != nil {
		return ClassificationReport{}, err
	}
	return ClassificationReport{Accuracy: acc}, nil
}

// Accuracy は予測ラベルが正解と一致した行の（重み付き）割合を計算する
func Accuracy(actual, predicted []string, weights []float64) (float64, error) {
	const op = "metrics.Accuracy"
	n := len(actual)
	if n == 0 {
		return 0, errors.NewValueError(op, "empty input")
	}
	if len(predicted) != n {
		return 0, errors.NewDimensionError(op, n, len(predicted), 0)
	}
	if err := checkWeights(op, n, weights); err != nil {
		return 0, err
	}

	hits := make([]float64, n)
	for i := range actual {
		if actual[i] == predicted[i] {
			hits[i] = 1
		}
	}
	return stat.Mean(hits, weights), nil
}
