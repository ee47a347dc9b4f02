package preprocessing

import (
	"fmt"
	"sort"

	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/model"
	"github.com/YuminosukeSato/eps/pkg/errors"
)

// LabelEncoder maps categorical labels to dense integer indices.
//
// Indices follow the sorted order of the stringified labels, not encounter
// order: tree thresholds produced on encoded columns are decoded back through
// the same ordering.
type LabelEncoder struct {
	model.BaseEstimator

	labels []string
	index  map[string]int
}

// NewLabelEncoder returns an unfitted encoder.
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{}
}

// NewLabelEncoderFromLabels returns a fitted encoder with the given vocabulary,
// which is sorted before use.
func NewLabelEncoderFromLabels(labels []string) *LabelEncoder {
	e := &LabelEncoder{}
	e.setLabels(append([]string(nil), labels...))
	return e
}

// Fit learns the vocabulary from the non-nil values.
func (e *LabelEncoder) Fit(values []any) {
	e.setLabels(feature.Domain(values))
}

func (e *LabelEncoder) setLabels(labels []string) {
	sort.Strings(labels)
	e.labels = labels
	e.index = make(map[string]int, len(labels))
	for i, l := range labels {
		e.index[l] = i
	}
	e.SetFitted()
}

// Transform encodes values. Nil stays -1; a label not seen during Fit maps to
// len(Labels()).
func (e *LabelEncoder) Transform(values []any) ([]int, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("LabelEncoder", "Transform")
	}
	out := make([]int, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = -1
			continue
		}
		out[i] = e.Encode(feature.Stringify(v))
	}
	return out, nil
}

// FitTransform fits the encoder and encodes the same values.
func (e *LabelEncoder) FitTransform(values []any) ([]int, error) {
	e.Fit(values)
	return e.Transform(values)
}

// Encode returns the index of a stringified label, or the unseen sentinel.
func (e *LabelEncoder) Encode(label string) int {
	if i, ok := e.index[label]; ok {
		return i
	}
	return len(e.labels)
}

// InverseTransform maps indices back to labels.
func (e *LabelEncoder) InverseTransform(idx []int) ([]string, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("LabelEncoder", "InverseTransform")
	}
	out := make([]string, len(idx))
	for i, j := range idx {
		if j < 0 || j >= len(e.labels) {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform", fmt.Sprintf("index %d out of range for %d labels", j, len(e.labels)))
		}
		out[i] = e.labels[j]
	}
	return out, nil
}

// Labels returns the sorted vocabulary.
func (e *LabelEncoder) Labels() []string {
	return append([]string(nil), e.labels...)
}
