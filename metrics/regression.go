// Package metrics は予測結果を評価する指標を提供します。
//
// すべての指標は任意の重みを受け取ります。weights が nil の場合は各行を同じ重みで扱います。
package metrics

import (
	"math"

	"github.com/YuminosukeSato/eps/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RegressionReport は回帰モデルの評価結果です。
type RegressionReport struct {
	RMSE float64 `yaml:"rmse"`
	MAE  float64 `yaml:"mae"`
	ME   float64 `yaml:"me"`
}

// Regression は RMSE, MAE, ME をまとめて計算する
func Regression(actual, predicted, weights []float64) (RegressionReport, error) {
	errs, err := residuals("metrics.Regression", actual, predicted, weights)
	if err != nil {
		return RegressionReport{}, err
	}
	return RegressionReport{
		RMSE: rmse(errs, weights),
		MAE:  mae(errs, weights),
		ME:   stat.Mean(errs, weights),
	}, nil
}

// residuals は actual - predicted を返す。長さと重みを検証する。
func residuals(op string, actual, predicted, weights []float64) ([]float64, error) {
	n := len(actual)
	if n == 0 {
		return nil, errors.NewValueError(op, "empty input")
	}
	if len(predicted) != n {
		return nil, errors.NewDimensionError(op, n, len(predicted), 0)
	}
	if err := checkWeights(op, n, weights); err != nil {
		return nil, err
	}
	errs := make([]float64, n)
	floats.SubTo(errs, actual, predicted)
	return errs, nil
}

func checkWeights(op string, n int, weights []float64) error {
	if weights == nil {
		return nil
	}
	if len(weights) != n {
		return errors.NewDimensionError(op, n, len(weights), 0)
	}
	if floats.Min(weights) < 0 {
		return errors.NewValueError(op, "negative weight")
	}
	if floats.Sum(weights) == 0 {
		return errors.NewValueError(op, "weights sum to zero")
	}
	return nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(actual, predicted, weights []float64) (float64, error) {
	errs, err := residuals("metrics.MSE", actual, predicted, weights)
	if err != nil {
		return 0, err
	}
	return mse(errs, weights), nil
}

func mse(errs, weights []float64) float64 {
	sq := make([]float64, len(errs))
	floats.MulTo(sq, errs, errs)
	return stat.Mean(sq, weights)
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(actual, predicted, weights []float64) (float64, error) {
	errs, err := residuals("metrics.RMSE", actual, predicted, weights)
	if err != nil {
		return 0, err
	}
	return rmse(errs, weights), nil
}

func rmse(errs, weights []float64) float64 { return math.Sqrt(mse(errs, weights)) }

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(actual, predicted, weights []float64) (float64, error) {
	errs, err := residuals("metrics.MAE", actual, predicted, weights)
	if err != nil {
		return 0, err
	}
	return mae(errs, weights), nil
}

func mae(errs, weights []float64) float64 {
	abs := make([]float64, len(errs))
	for i, e := range errs {
		abs[i] = math.Abs(e)
	}
	return stat.Mean(abs, weights)
}

// ME は平均誤差（Mean Error）を計算する。正の値は予測が小さすぎることを示す。
func ME(actual, predicted, weights []float64) (float64, error) {
	errs, err := residuals("metrics.ME", actual, predicted, weights)
	if err != nil {
		return 0, err
	}
	return stat.Mean(errs, weights), nil
}

// R2Score は決定係数（R²）を計算する
func R2Score(actual, predicted, weights []float64) (float64, error) {
	const op = "metrics.R2Score"
	errs, err := residuals(op, actual, predicted, weights)
	if err != nil {
		return 0, err
	}

	// 全変動（TSS）と残差変動（RSS）
	mean := stat.Mean(actual, weights)
	var tss, rss float64
	for i, y := range actual {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		tss += w * (y - mean) * (y - mean)
		rss += w * errs[i] * errs[i]
	}
	if tss == 0 {
		return 0, errors.NewValueError(op, "total sum of squares is zero (no variance in actual)")
	}

	// R² = 1 - RSS/TSS
	return 1 - rss/tss, nil
}
