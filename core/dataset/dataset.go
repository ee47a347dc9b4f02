// Package dataset turns caller tables into the training and validation sets a
// trainer consumes: it extracts the target and weight columns, infers the
// feature spec, detects free-text columns and performs the seeded split.
package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/table"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/preprocessing"
)

// DefaultTarget is the target column used when none is configured.
const DefaultTarget = "target"

// MinSplitRows is the smallest training table split automatically.
const MinSplitRows = 30

// DefaultValidationSize is the share of rows held out by a split.
const DefaultValidationSize = 0.25

// SplitOptions configures the train/validation split.
type SplitOptions struct {
	// Column names a time-like column. Rows strictly before Value go to the
	// training set. The column is removed from the features.
	Column string `yaml:"column"`
	// Value is the split point for Column. When nil, the value found at the
	// training share of the sorted column is used.
	Value any `yaml:"value"`
	// ValidationSize is the held out share, 0.25 when zero.
	ValidationSize float64 `yaml:"validation_size"`
	// Shuffle assigns rows at random when nil or true; false keeps the first
	// rows for training.
	Shuffle *bool `yaml:"shuffle"`
}

// Options configures Prepare.
type Options struct {
	Target       string
	WeightColumn string
	Weights      []float64
	// Split forces a split with the given settings. When nil, tables with at
	// least MinSplitRows rows are split with the defaults.
	Split   *SplitOptions
	NoSplit bool
	// Validation is an explicit validation table holding the same target and
	// weight columns. It disables the split.
	Validation *table.Table
	// TextFeatures lists the free-text columns with their encoder settings.
	// When nil, text columns are detected. Zero fields keep the training
	// defaults.
	TextFeatures map[string]preprocessing.TextOptions
	Seed         uint64
}

// Prepared is the outcome of Prepare.
type Prepared struct {
	Target     string
	TargetType feature.Type
	// Spec lists the features in column order. Categorical features carry
	// their training-set domain.
	Spec feature.Spec
	// Text holds the encoder settings of each text feature.
	Text       map[string]preprocessing.TextOptions
	Train      *table.Table
	Validation *table.Table
}

// Prepare validates data and builds the training and validation sets.
func Prepare(data *table.Table, opts Options) (*Prepared, error) {
	const op = "dataset.Prepare"

	target := opts.Target
	if target == "" {
		target = DefaultTarget
	}
	if opts.Validation != nil && opts.Target == "" {
		return nil, errors.NewValueError(op, "target required for validation set")
	}
	if opts.Validation != nil && opts.Weights != nil {
		return nil, errors.NewValueError(op, "weight column required for validation set")
	}

	train, err := Extract(data, target, opts.WeightColumn, opts.Weights)
	if err != nil {
		return nil, err
	}
	targetType, err := feature.Infer(op, target, train.Label())
	if err != nil {
		return nil, err
	}

	var trainIdx, validIdx []int
	split := opts.Validation == nil && !opts.NoSplit && (opts.Split != nil || train.Size() >= MinSplitRows)
	if split {
		so := SplitOptions{}
		if opts.Split != nil {
			so = *opts.Split
		}
		trainIdx, validIdx, err = splitIndices(train, so, opts.Seed)
		if err != nil {
			return nil, err
		}
	}

	spec := make(feature.Spec, 0, len(train.Names()))
	for _, name := range train.Names() {
		values, _ := train.Column(name)
		t, err := feature.Observed(op, name, values)
		if err != nil {
			return nil, err
		}
		spec = append(spec, feature.Feature{Name: name, Type: t})
	}

	textOpts := opts.TextFeatures
	if textOpts == nil {
		textOpts = make(map[string]preprocessing.TextOptions)
		for _, name := range DetectText(train, spec) {
			textOpts[name] = preprocessing.TextOptions{}
		}
	}
	text := make(map[string]preprocessing.TextOptions, len(textOpts))
	for name, to := range textOpts {
		if !train.Has(name) {
			return nil, errors.NewMissingColumnError(op, name)
		}
		f, _ := spec.Lookup(name)
		if f.Type == feature.Numeric {
			return nil, errors.NewTypeMismatchError(op, name, string(feature.Text), string(feature.Numeric))
		}
		f.Type = feature.Text
		spec = spec.Set(f)
		text[name] = MergeText(to)
	}

	p := &Prepared{Target: target, TargetType: targetType, Text: text}
	if split {
		p.Train = train.Take(trainIdx)
		p.Validation = train.Take(validIdx)
	} else {
		p.Train = train
		if opts.Validation != nil {
			p.Validation, err = Extract(opts.Validation, target, opts.WeightColumn, nil)
			if err != nil {
				return nil, errors.Wrap(err, "validation set")
			}
		}
	}

	if p.Train.Size() == 0 {
		return nil, errors.NewInsufficientDataError(op, "no data in training set")
	}
	if p.Validation != nil && p.Validation.Size() == 0 {
		return nil, errors.NewInsufficientDataError(op, "no data in validation set")
	}

	for i, f := range spec {
		if f.Type == feature.Categorical {
			values, _ := p.Train.Column(f.Name)
			spec[i].Values = feature.Domain(values)
		}
	}
	p.Spec = spec
	return p, nil
}

// Extract copies data and moves the target column to the label and the weight
// column (or the explicit weights) to the weight vector.
func Extract(data *table.Table, target, weightColumn string, weights []float64) (*table.Table, error) {
	const op = "dataset.Extract"
	if data == nil || data.Empty() {
		return nil, errors.NewInsufficientDataError(op, "no data")
	}

	t := data.Dup()
	y, ok := t.Delete(target)
	if !ok {
		return nil, errors.NewMissingColumnError(op, target)
	}
	if err := CheckMissing(op, target, y); err != nil {
		return nil, err
	}

	if weightColumn != "" {
		w, ok := t.Delete(weightColumn)
		if !ok {
			return nil, errors.NewMissingColumnError(op, weightColumn)
		}
		if err := CheckMissing(op, weightColumn, w); err != nil {
			return nil, err
		}
		weights = make([]float64, len(w))
		for i, v := range w {
			f, ok := v.(float64)
			if !ok {
				return nil, errors.NewTypeMismatchError(op, weightColumn, string(feature.Numeric), fmt.Sprintf("%T", v))
			}
			weights[i] = f
		}
	}

	if t.Empty() {
		return nil, errors.NewInsufficientDataError(op, "no features left")
	}
	if err := t.SetLabel(y); err != nil {
		return nil, errors.Wrap(err, "number of data points differs from target")
	}
	if weights != nil {
		if err := t.SetWeight(append([]float64(nil), weights...)); err != nil {
			return nil, errors.Wrap(err, "number of data points differs from weight")
		}
	}
	return t, nil
}

// CheckMissing fails with a MissingValueError when values holds a nil.
func CheckMissing(op, name string, values []any) error {
	for _, v := range values {
		if v == nil {
			return errors.NewMissingValueError(op, name)
		}
	}
	return nil
}

// CheckTable runs CheckMissing over every column of t.
func CheckTable(op string, t *table.Table) error {
	for _, name := range t.Names() {
		values, _ := t.Column(name)
		if err := CheckMissing(op, name, values); err != nil {
			return err
		}
	}
	return nil
}

// DetectText returns the categorical string columns in which more than half of
// the non-empty values contain at least two spaces.
func DetectText(t *table.Table, spec feature.Spec) []string {
	var out []string
	for _, f := range spec {
		if f.Type != feature.Categorical {
			continue
		}
		values, _ := t.Column(f.Name)
		count, spaced := 0, 0
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				if v != nil {
					count = -1
					break
				}
				continue
			}
			if s == "" {
				continue
			}
			count++
			if strings.Count(s, " ") >= 2 {
				spaced++
			}
		}
		if count > 0 && float64(spaced) > 0.5*float64(count) {
			out = append(out, f.Name)
		}
	}
	return out
}

// MergeText fills the zero fields of opts with the training defaults. A
// negative MinLength or MaxFeatures disables that filter.
func MergeText(opts preprocessing.TextOptions) preprocessing.TextOptions {
	out := preprocessing.DefaultTextOptions()
	if opts.Tokenizer != "" {
		out.Tokenizer = opts.Tokenizer
	}
	out.CaseSensitive = opts.CaseSensitive
	out.StopWords = opts.StopWords
	if opts.MinLength != 0 {
		out.MinLength = opts.MinLength
	}
	out.MinOccurrences = opts.MinOccurrences
	out.MaxOccurrences = opts.MaxOccurrences
	if opts.MaxFeatures != 0 {
		out.MaxFeatures = opts.MaxFeatures
	}
	return out
}

func splitIndices(t *table.Table, so SplitOptions, seed uint64) (train, valid []int, err error) {
	const op = "dataset.Split"
	size := so.ValidationSize
	if size == 0 {
		size = DefaultValidationSize
	}
	if size <= 0 || size >= 1 {
		return nil, nil, errors.NewValueError(op, fmt.Sprintf("validation size must be between 0 and 1, got %g", size))
	}
	p := 1 - size
	n := t.Size()

	if so.Column != "" {
		times, ok := t.Delete(so.Column)
		if !ok {
			return nil, nil, errors.NewMissingColumnError(op, so.Column)
		}
		if err := CheckMissing(op, so.Column, times); err != nil {
			return nil, nil, err
		}
		splitValue := so.Value
		if splitValue == nil {
			sorted := append([]any(nil), times...)
			var sortErr error
			sort.SliceStable(sorted, func(i, j int) bool {
				less, err := before(sorted[i], sorted[j])
				if err != nil && sortErr == nil {
					sortErr = err
				}
				return less
			})
			if sortErr != nil {
				return nil, nil, errors.Wrapf(sortErr, "split column %s", so.Column)
			}
			splitValue = sorted[min(int(math.Round(float64(n)*p)), n-1)]
		} else if splitValue, err = table.Normalize(splitValue); err != nil {
			return nil, nil, errors.NewTypeMismatchError(op, so.Column, "number or string", fmt.Sprintf("%T", so.Value))
		}
		for i, v := range times {
			less, err := before(v, splitValue)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "split column %s", so.Column)
			}
			if less {
				train = append(train, i)
			} else {
				valid = append(valid, i)
			}
		}
		return train, valid, nil
	}

	if so.Shuffle == nil || *so.Shuffle {
		rng := rand.New(rand.NewPCG(seed, seed))
		for i := 0; i < n; i++ {
			if rng.Float64() < p {
				train = append(train, i)
			} else {
				valid = append(valid, i)
			}
		}
		return train, valid, nil
	}

	cut := int(math.Round(float64(n) * p))
	for i := 0; i < n; i++ {
		if i < cut {
			train = append(train, i)
		} else {
			valid = append(valid, i)
		}
	}
	return train, valid, nil
}

// before orders two split-column values. Numbers compare numerically and
// strings lexically; ISO dates therefore sort chronologically.
func before(a, b any) (bool, error) {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			return x < y, nil
		}
	case string:
		if y, ok := b.(string); ok {
			return x < y, nil
		}
	}
	return false, errors.NewTypeMismatchError("dataset.Split", "split", fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}
