package feature

import (
	"github.com/YuminosukeSato/eps/pkg/errors"
)

// Infer returns the type of a column from its values: Numeric when every value
// is a float64, Categorical when every value is a string or every value is a
// bool. A column holding only nils (or nothing) yields "" and no error. A
// column mixing nils with values fails with a MissingValueError, and a column
// mixing kinds fails with a TypeMismatchError.
func Infer(op, name string, values []any) (Type, error) {
	var nils, floats, strs, bools int
	for _, v := range values {
		switch v.(type) {
		case nil:
			nils++
		case float64:
			floats++
		case string:
			strs++
		case bool:
			bools++
		}
	}

	n := len(values)
	switch {
	case nils == n:
		return "", nil
	case nils > 0:
		return "", errors.NewMissingValueError(op, name)
	case floats == n:
		return Numeric, nil
	case strs == n, bools == n:
		return Categorical, nil
	default:
		return "", errors.NewTypeMismatchError(op, name, "all numeric, all string, or all boolean values", "mixed values")
	}
}

// Compatible reports whether an observed column type can be scored by a
// feature declared as declared. Text and derived features read categorical
// columns; an empty observed type (all nil) is always compatible.
func Compatible(declared, observed Type) bool {
	if observed == "" {
		return true
	}
	if declared == Numeric {
		return observed == Numeric
	}
	return observed == Categorical
}

// Observed infers the type of the non-nil values of a column. Prediction uses
// it so that nils are left to each evaluator's missing-value policy.
func Observed(op, name string, values []any) (Type, error) {
	compact := make([]any, 0, len(values))
	for _, v := range values {
		if v != nil {
			compact = append(compact, v)
		}
	}
	return Infer(op, name, compact)
}
