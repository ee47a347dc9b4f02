package evaluator

import (
	"fmt"

	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/model"
	"github.com/YuminosukeSato/eps/core/table"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/preprocessing"
)

// TreeEnsemble sums the scores of boosted trees. Multiclass ensembles hold
// one contiguous block of trees per class, in class order.
type TreeEnsemble struct {
	spec      feature.Spec
	objective model.Objective
	labels    []string
	trees     []*Node
	text      Text
	encoders  map[string]*preprocessing.TextEncoder
}

// NewTreeEnsemble builds an evaluator. Binary ensembles need two labels, the
// second being the positive class; multiclass ensembles need a tree count
// divisible by the number of labels.
func NewTreeEnsemble(spec feature.Spec, objective model.Objective, labels []string, trees []*Node, text Text) (*TreeEnsemble, error) {
	const op = "evaluator.NewTreeEnsemble"
	switch objective {
	case model.Regression:
		labels = nil
	case model.Binary:
		if len(labels) != 2 {
			return nil, errors.NewValueError(op, fmt.Sprintf("binary objective needs 2 labels, got %d", len(labels)))
		}
	case model.Multiclass:
		if len(labels) < 2 || len(trees)%len(labels) != 0 {
			return nil, errors.NewValueError(op, fmt.Sprintf("%d trees cannot be split into %d classes", len(trees), len(labels)))
		}
	default:
		return nil, errors.NewValueError(op, "unknown objective "+string(objective))
	}

	e := &TreeEnsemble{
		spec:      append(feature.Spec(nil), spec...),
		objective: objective,
		labels:    append([]string(nil), labels...),
		trees:     append([]*Node(nil), trees...),
		text:      text.clone(),
	}
	for _, f := range spec.OfType(feature.Text) {
		if _, ok := e.text[f.Name]; !ok {
			return nil, errors.NewValueError(op, "no text settings for feature "+f.Name)
		}
	}
	var err error
	if e.encoders, err = e.text.encoders(); err != nil {
		return nil, err
	}
	return e, nil
}

// Features returns the model inputs.
func (e *TreeEnsemble) Features() feature.Spec { return append(feature.Spec(nil), e.spec...) }

// Objective returns the boosting objective.
func (e *TreeEnsemble) Objective() model.Objective { return e.objective }

// Classes returns the labels; nil for regression.
func (e *TreeEnsemble) Classes() []string { return append([]string(nil), e.labels...) }

// Trees returns the tree roots in evaluation order.
func (e *TreeEnsemble) Trees() []*Node { return append([]*Node(nil), e.trees...) }

// Text returns the text feature settings.
func (e *TreeEnsemble) Text() Text { return e.text.clone() }

// TreesPerClass is the size of each class block.
func (e *TreeEnsemble) TreesPerClass() int {
	if e.objective != model.Multiclass {
		return len(e.trees)
	}
	return len(e.trees) / len(e.labels)
}

// Predict returns raw sums for regression and labels for classifiers.
func (e *TreeEnsemble) Predict(t *table.Table) (model.Predictions, error) {
	raw, err := e.raw("TreeEnsemble.Predict", t)
	if err != nil {
		return model.Predictions{}, err
	}

	switch e.objective {
	case model.Regression:
		scores := make([]float64, len(raw))
		for i, r := range raw {
			scores[i] = r[0]
		}
		return model.Predictions{Scores: scores}, nil
	case model.Binary:
		out := make([]string, len(raw))
		for i, r := range raw {
			if errors.Sigmoid(r[0]) > 0.5 {
				out[i] = e.labels[1]
			} else {
				out[i] = e.labels[0]
			}
		}
		return model.Predictions{Labels: out}, nil
	default:
		out := make([]string, len(raw))
		for i, r := range raw {
			best := 0
			for k, s := range r {
				if s > r[best] {
					best = k
				}
			}
			out[i] = e.labels[best]
		}
		return model.Predictions{Labels: out}, nil
	}
}

// PredictProbability returns per-class probabilities. Regression ensembles
// fail with a ValueError.
func (e *TreeEnsemble) PredictProbability(t *table.Table) ([]map[string]float64, error) {
	const op = "TreeEnsemble.PredictProbability"
	if e.objective == model.Regression {
		return nil, errors.NewValueError(op, "probabilities not supported for regression")
	}
	raw, err := e.raw(op, t)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]float64, len(raw))
	for i, r := range raw {
		probs := make(map[string]float64, len(e.labels))
		if e.objective == model.Binary {
			p := errors.Sigmoid(r[0])
			probs[e.labels[0]] = 1 - p
			probs[e.labels[1]] = p
		} else {
			for k, p := range errors.Softmax(r) {
				probs[e.labels[k]] = p
			}
		}
		out[i] = probs
	}
	return out, nil
}

// raw returns one score per row and class block.
func (e *TreeEnsemble) raw(op string, t *table.Table) ([][]float64, error) {
	if err := CheckTable(op, e.spec, t); err != nil {
		return nil, err
	}
	rows := e.encode(t)

	blocks := 1
	if e.objective == model.Multiclass {
		blocks = len(e.labels)
	}
	per := len(e.trees) / max(blocks, 1)

	out := make([][]float64, len(rows))
	for i, row := range rows {
		sums := make([]float64, blocks)
		for b := range sums {
			for _, tree := range e.trees[b*per : (b+1)*per] {
				if s, ok := tree.Eval(row); ok {
					sums[b] += s
				}
			}
		}
		out[i] = sums
	}
	return out, nil
}

// encode builds one Row per table row, replacing text columns by their term
// counts.
func (e *TreeEnsemble) encode(t *table.Table) []Row {
	rows := make([]Row, t.Size())
	for i := range rows {
		rows[i] = make(Row, len(e.spec))
	}
	for _, f := range e.spec {
		values, _ := t.Column(f.Name)
		if f.Type == feature.Text {
			for i, counts := range e.encoders[f.Name].Transform(values) {
				for term, n := range counts {
					rows[i][feature.TermKey(f.Name, term)] = float64(n)
				}
			}
			continue
		}
		for i, v := range values {
			rows[i][feature.FieldKey(f.Name)] = v
		}
	}
	return rows
}
