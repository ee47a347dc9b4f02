package evaluator

import (
	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/model"
	"github.com/YuminosukeSato/eps/core/table"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/preprocessing"
)

// Coefficient is one fitted weight.
type Coefficient struct {
	Key   feature.Key
	Value float64
}

// Coefficients is the intercept plus the ordered weights of a linear model.
type Coefficients struct {
	Intercept float64
	Terms     []Coefficient
}

// Lookup returns the weight of k.
func (c Coefficients) Lookup(k feature.Key) (float64, bool) {
	for _, t := range c.Terms {
		if t.Key == k {
			return t.Value, true
		}
	}
	return 0, false
}

// LinearRegression scores rows as the intercept plus the weighted sum of the
// encoded inputs.
type LinearRegression struct {
	spec     feature.Spec
	coef     Coefficients
	text     Text
	weights  map[feature.Key]float64
	encoders map[string]*preprocessing.TextEncoder
}

// NewLinearRegression builds an evaluator. Keys of absent categories or terms
// weigh 0, which is how the reference level of a categorical feature is
// represented.
func NewLinearRegression(spec feature.Spec, coef Coefficients, text Text) (*LinearRegression, error) {
	e := &LinearRegression{
		spec:    append(feature.Spec(nil), spec...),
		coef:    Coefficients{Intercept: coef.Intercept, Terms: append([]Coefficient(nil), coef.Terms...)},
		text:    text.clone(),
		weights: make(map[feature.Key]float64, len(coef.Terms)),
	}
	for _, t := range coef.Terms {
		e.weights[t.Key] = t.Value
	}
	for _, f := range spec.OfType(feature.Text) {
		if _, ok := e.text[f.Name]; !ok {
			return nil, errors.NewValueError("evaluator.NewLinearRegression", "no text settings for feature "+f.Name)
		}
	}
	var err error
	if e.encoders, err = e.text.encoders(); err != nil {
		return nil, err
	}
	return e, nil
}

// Features returns the model inputs.
func (e *LinearRegression) Features() feature.Spec { return append(feature.Spec(nil), e.spec...) }

// Objective is always regression.
func (e *LinearRegression) Objective() model.Objective { return model.Regression }

// Coefficients returns a copy of the fitted weights.
func (e *LinearRegression) Coefficients() Coefficients {
	return Coefficients{Intercept: e.coef.Intercept, Terms: append([]Coefficient(nil), e.coef.Terms...)}
}

// Text returns the text feature settings.
func (e *LinearRegression) Text() Text { return e.text.clone() }

// Predict scores every row of t.
func (e *LinearRegression) Predict(t *table.Table) (model.Predictions, error) {
	const op = "LinearRegression.Predict"
	if err := CheckTable(op, e.spec, t); err != nil {
		return model.Predictions{}, err
	}

	scores := make([]float64, t.Size())
	for i := range scores {
		scores[i] = e.coef.Intercept
	}

	for _, f := range e.spec {
		values, _ := t.Column(f.Name)
		for _, v := range values {
			if v == nil {
				return model.Predictions{}, errors.NewMissingValueError(op, f.Name)
			}
		}

		switch f.Type {
		case feature.Categorical:
			for i, v := range values {
				scores[i] += e.weights[feature.CategoryKey(f.Name, feature.Stringify(v))]
			}
		case feature.Text:
			enc := e.encoders[f.Name]
			vocab := enc.Vocabulary()
			for i, counts := range enc.Transform(values) {
				for _, term := range vocab {
					if n := counts[term]; n > 0 {
						scores[i] += e.weights[feature.TermKey(f.Name, term)] * float64(n)
					}
				}
			}
		default:
			w := e.weights[feature.FieldKey(f.Name)]
			for i, v := range values {
				scores[i] += w * v.(float64)
			}
		}
	}
	return model.Predictions{Scores: scores}, nil
}
