package evaluator

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/model"
	"github.com/YuminosukeSato/eps/core/table"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// TinyProbability replaces zero likelihoods so a single unseen combination
// does not rule a class out.
const TinyProbability = 1e-4

// Gaussian summarizes a numeric feature within one class.
type Gaussian struct {
	Mean  float64
	Stdev float64
}

// Derived is an indicator computed from a categorical source column: 1 when
// the source equals Value, 0 otherwise. Its per-class statistics live in
// ProbabilityTable.Numeric under Name.
type Derived struct {
	Name  string
	Value string
}

// ProbabilityTable holds the fitted naive Bayes statistics.
type ProbabilityTable struct {
	// Prior maps each class to its row count.
	Prior map[string]float64
	// Categorical maps feature → value → class → raw count.
	Categorical map[string]map[string]map[string]float64
	// Numeric maps feature → class → statistics.
	Numeric map[string]map[string]Gaussian
	// Smoothing is the Laplace α added to every categorical count.
	Smoothing float64
}

// Smoothed returns the count of (value, class) after Laplace smoothing,
// rescaled so the smoothed counts of a class still sum to its raw total.
// Documents store these values so that they can be read back with α = 0.
func (p ProbabilityTable) Smoothed(name, value, class string) float64 {
	values := p.Categorical[name]
	total := 0.0
	for _, byClass := range values {
		total += byClass[class]
	}
	k := float64(len(values))
	if total+k*p.Smoothing == 0 {
		return 0
	}
	return (values[value][class] + p.Smoothing) * total / (total + k*p.Smoothing)
}

// Conditional returns P(value | class) for a categorical feature and whether
// the value was seen at all.
func (p ProbabilityTable) Conditional(name, value, class string) (float64, bool) {
	values := p.Categorical[name]
	byClass, ok := values[value]
	if !ok {
		return 0, false
	}
	total := 0.0
	for _, bc := range values {
		total += bc[class]
	}
	denom := total + float64(len(values))*p.Smoothing
	if denom == 0 {
		return 0, true
	}
	return (byClass[class] + p.Smoothing) / denom, true
}

// NaiveBayes is a categorical/Gaussian naive Bayes classifier.
type NaiveBayes struct {
	spec    feature.Spec
	probs   ProbabilityTable
	derived map[string][]Derived
	classes []string
}

// NewNaiveBayes builds an evaluator. derived lists, per source column, the
// indicators an external producer computed from it.
func NewNaiveBayes(spec feature.Spec, probs ProbabilityTable, derived map[string][]Derived) (*NaiveBayes, error) {
	if len(probs.Prior) == 0 {
		return nil, errors.NewValueError("evaluator.NewNaiveBayes", "no classes")
	}
	classes := make([]string, 0, len(probs.Prior))
	for c := range probs.Prior {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	d := make(map[string][]Derived, len(derived))
	for k, v := range derived {
		d[k] = append([]Derived(nil), v...)
	}
	return &NaiveBayes{
		spec:    append(feature.Spec(nil), spec...),
		probs:   probs,
		derived: d,
		classes: classes,
	}, nil
}

// Features returns the model inputs.
func (e *NaiveBayes) Features() feature.Spec { return append(feature.Spec(nil), e.spec...) }

// Objective is binary for two classes and multiclass otherwise.
func (e *NaiveBayes) Objective() model.Objective {
	if len(e.classes) == 2 {
		return model.Binary
	}
	return model.Multiclass
}

// Classes returns the class labels in sorted order.
func (e *NaiveBayes) Classes() []string { return append([]string(nil), e.classes...) }

// Probabilities returns the fitted statistics.
func (e *NaiveBayes) Probabilities() ProbabilityTable { return e.probs }

// Derived returns the indicator features per source column.
func (e *NaiveBayes) Derived() map[string][]Derived {
	out := make(map[string][]Derived, len(e.derived))
	for k, v := range e.derived {
		out[k] = append([]Derived(nil), v...)
	}
	return out
}

// Predict returns the most likely class per row. Ties go to the class that
// sorts first.
func (e *NaiveBayes) Predict(t *table.Table) (model.Predictions, error) {
	logp, err := e.logLikelihood("NaiveBayes.Predict", t)
	if err != nil {
		return model.Predictions{}, err
	}
	labels := make([]string, len(logp))
	for i, lp := range logp {
		best := 0
		for k := range lp {
			if lp[k] > lp[best] {
				best = k
			}
		}
		labels[i] = e.classes[best]
	}
	return model.Predictions{Labels: labels}, nil
}

// PredictProbability returns normalized class probabilities per row.
func (e *NaiveBayes) PredictProbability(t *table.Table) ([]map[string]float64, error) {
	logp, err := e.logLikelihood("NaiveBayes.PredictProbability", t)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]float64, len(logp))
	for i, lp := range logp {
		probs := make(map[string]float64, len(e.classes))
		for k, p := range errors.Softmax(lp) {
			probs[e.classes[k]] = p
		}
		out[i] = probs
	}
	return out, nil
}

// logLikelihood returns log P(class) + Σ log P(feature | class) per row and
// class, classes in sorted order.
func (e *NaiveBayes) logLikelihood(op string, t *table.Table) ([][]float64, error) {
	if err := CheckTable(op, e.spec, t); err != nil {
		return nil, err
	}

	n := t.Size()
	total := 0.0
	for _, c := range e.classes {
		total += e.probs.Prior[c]
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, len(e.classes))
	}

	for k, c := range e.classes {
		prior := math.Log(e.probs.Prior[c] / total)
		for i := range out {
			out[i][k] = prior
		}

		for _, f := range e.spec {
			values, _ := t.Column(f.Name)
			switch f.Type {
			case feature.Categorical:
				for i, v := range values {
					if v == nil {
						continue
					}
					p, seen := e.probs.Conditional(f.Name, feature.Stringify(v), c)
					if !seen {
						continue
					}
					if p == 0 {
						p = TinyProbability
					}
					out[i][k] += math.Log(p)
				}
			case feature.Derived:
				for _, d := range e.derived[f.Name] {
					g, ok := e.probs.Numeric[d.Name][c]
					if !ok {
						continue
					}
					for i, v := range values {
						x := 0.0
						if v != nil && feature.Stringify(v) == d.Value {
							x = 1
						}
						out[i][k] += logDensity(x, g)
					}
				}
			default:
				g, ok := e.probs.Numeric[f.Name][c]
				if !ok {
					continue
				}
				for i, v := range values {
					x, ok := v.(float64)
					if !ok {
						return nil, errors.NewMissingValueError(op, f.Name)
					}
					out[i][k] += logDensity(x, g)
				}
			}
		}
	}
	return out, nil
}

// logDensity is the Gaussian log density of x. A class with no spread only
// supports its mean exactly.
func logDensity(x float64, g Gaussian) float64 {
	if g.Stdev == 0 || math.IsNaN(g.Stdev) {
		if x == g.Mean {
			return 0
		}
		return math.Log(TinyProbability)
	}
	return distuv.Normal{Mu: g.Mean, Sigma: g.Stdev}.LogProb(x)
}
