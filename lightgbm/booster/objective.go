package booster

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/eps/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// objective defines the loss being boosted. Scores are stored class-major:
// the score of row i for class c is scores[c*n+i].
type objective interface {
	name() string
	// numModels is the number of trees fit per iteration.
	numModels() int
	check(label []float64) error
	// initScores is the constant each class starts from (boost from average).
	initScores(label, weight []float64) []float64
	gradients(scores, label, weight, grad, hess []float64)
	// loss is the weighted mean validation metric: l2, logloss or
	// multi_logloss.
	loss(scores, label, weight []float64) float64
	// transform maps the raw scores of one row to the booster output.
	transform(raw []float64) []float64
}

func newObjective(p Params) (objective, error) {
	switch p.Objective {
	case Regression, "":
		return regressionL2{}, nil
	case Binary:
		return binaryLogloss{}, nil
	case Multiclass:
		if p.NumClass < 2 {
			return nil, errors.NewValueError("booster.Train", fmt.Sprintf("multiclass needs num_class >= 2, got %d", p.NumClass))
		}
		return multiclassSoftmax{numClass: p.NumClass}, nil
	default:
		return nil, errors.NewValueError("booster.Train", "unknown objective "+p.Objective)
	}
}

func weightAt(weight []float64, i int) float64 {
	if weight == nil {
		return 1
	}
	return weight[i]
}

func weightedMean(values, weight []float64) float64 {
	if weight == nil {
		return floats.Sum(values) / float64(len(values))
	}
	return floats.Dot(values, weight) / floats.Sum(weight)
}

const kEpsilon = 1e-15

// regressionL2 is the squared error.
type regressionL2 struct{}

func (regressionL2) name() string          { return Regression }
func (regressionL2) numModels() int        { return 1 }
func (regressionL2) check([]float64) error { return nil }

func (regressionL2) initScores(label, weight []float64) []float64 {
	return []float64{weightedMean(label, weight)}
}

func (regressionL2) gradients(scores, label, weight, grad, hess []float64) {
	for i, y := range label {
		w := weightAt(weight, i)
		grad[i] = (scores[i] - y) * w
		hess[i] = w
	}
}

func (regressionL2) loss(scores, label, weight []float64) float64 {
	sq := make([]float64, len(label))
	for i, y := range label {
		d := scores[i] - y
		sq[i] = d * d
	}
	return weightedMean(sq, weight)
}

func (regressionL2) transform(raw []float64) []float64 { return []float64{raw[0]} }

// binaryLogloss is the logistic loss on 0/1 labels.
type binaryLogloss struct{}

func (binaryLogloss) name() string   { return Binary }
func (binaryLogloss) numModels() int { return 1 }

func (binaryLogloss) check(label []float64) error {
	for _, y := range label {
		if y != 0 && y != 1 {
			return errors.NewValueError("booster.Train", fmt.Sprintf("binary label must be 0 or 1, got %g", y))
		}
	}
	return nil
}

func (binaryLogloss) initScores(label, weight []float64) []float64 {
	p := math.Min(math.Max(weightedMean(label, weight), kEpsilon), 1-kEpsilon)
	return []float64{math.Log(p / (1 - p))}
}

func (binaryLogloss) gradients(scores, label, weight, grad, hess []float64) {
	for i, y := range label {
		w := weightAt(weight, i)
		p := errors.Sigmoid(scores[i])
		grad[i] = (p - y) * w
		hess[i] = math.Max(p*(1-p), kEpsilon) * w
	}
}

func (binaryLogloss) loss(scores, label, weight []float64) float64 {
	ll := make([]float64, len(label))
	for i, y := range label {
		p := math.Min(math.Max(errors.Sigmoid(scores[i]), kEpsilon), 1-kEpsilon)
		if y == 1 {
			ll[i] = -math.Log(p)
		} else {
			ll[i] = -math.Log(1 - p)
		}
	}
	return weightedMean(ll, weight)
}

func (binaryLogloss) transform(raw []float64) []float64 {
	return []float64{errors.Sigmoid(raw[0])}
}

// multiclassSoftmax is the cross-entropy over softmax class probabilities.
type multiclassSoftmax struct {
	numClass int
}

func (m multiclassSoftmax) name() string   { return Multiclass }
func (m multiclassSoftmax) numModels() int { return m.numClass }

func (m multiclassSoftmax) check(label []float64) error {
	for _, y := range label {
		if y != math.Trunc(y) || y < 0 || int(y) >= m.numClass {
			return errors.NewValueError("booster.Train", fmt.Sprintf("multiclass label must be a class index below %d, got %g", m.numClass, y))
		}
	}
	return nil
}

func (m multiclassSoftmax) initScores(label, weight []float64) []float64 {
	out := make([]float64, m.numClass)
	indicator := make([]float64, len(label))
	for c := range out {
		for i, y := range label {
			indicator[i] = 0
			if int(y) == c {
				indicator[i] = 1
			}
		}
		out[c] = math.Log(math.Max(kEpsilon, weightedMean(indicator, weight)))
	}
	return out
}

// row gathers the scores of row i across classes.
func (m multiclassSoftmax) row(scores []float64, n, i int) []float64 {
	r := make([]float64, m.numClass)
	for c := range r {
		r[c] = scores[c*n+i]
	}
	return r
}

func (m multiclassSoftmax) gradients(scores, label, weight, grad, hess []float64) {
	n := len(label)
	factor := float64(m.numClass) / float64(m.numClass-1)
	for i, y := range label {
		w := weightAt(weight, i)
		probs := errors.Softmax(m.row(scores, n, i))
		for c, p := range probs {
			g := p
			if int(y) == c {
				g = p - 1
			}
			grad[c*n+i] = g * w
			hess[c*n+i] = math.Max(factor*p*(1-p), kEpsilon) * w
		}
	}
}

func (m multiclassSoftmax) loss(scores, label, weight []float64) float64 {
	n := len(label)
	ll := make([]float64, n)
	for i, y := range label {
		r := m.row(scores, n, i)
		ll[i] = errors.LogSumExp(r) - r[int(y)]
	}
	return weightedMean(ll, weight)
}

func (m multiclassSoftmax) transform(raw []float64) []float64 {
	return errors.Softmax(raw)
}
