// Package evaluator scores tables with fitted model parameters.
//
// Evaluators know nothing about how their parameters were produced: the same
// LinearRegression, NaiveBayes or TreeEnsemble value is built by a trainer or
// by the document loader, and both must predict identically.
package evaluator

import (
	"sort"

	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/table"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/preprocessing"
)

// Text maps each text feature to its encoder settings, vocabulary included.
type Text map[string]preprocessing.TextOptions

// Names returns the text feature names in sorted order.
func (t Text) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t Text) clone() Text {
	out := make(Text, len(t))
	for name, opts := range t {
		opts.StopWords = append([]string(nil), opts.StopWords...)
		opts.Vocabulary = append([]string(nil), opts.Vocabulary...)
		out[name] = opts
	}
	return out
}

func (t Text) encoders() (map[string]*preprocessing.TextEncoder, error) {
	out := make(map[string]*preprocessing.TextEncoder, len(t))
	for name, opts := range t {
		enc, err := preprocessing.NewTextEncoder(opts)
		if err != nil {
			return nil, errors.Wrapf(err, "text feature %s", name)
		}
		out[name] = enc
	}
	return out, nil
}

// CheckTable verifies that t holds every feature of spec with a compatible
// type. Types are inferred from the non-nil values only.
func CheckTable(op string, spec feature.Spec, t *table.Table) error {
	for _, f := range spec {
		values, ok := t.Column(f.Name)
		if !ok {
			return errors.NewMissingColumnError(op, f.Name)
		}
		observed, err := feature.Observed(op, f.Name, values)
		if err != nil {
			return err
		}
		if !feature.Compatible(f.Type, observed) {
			return errors.NewTypeMismatchError(op, f.Name, string(f.Type), string(observed))
		}
	}
	return nil
}
