// Package feature describes the columns a model was trained on: their names,
// their types and, for categorical columns, their value domains.
package feature

import (
	"sort"
	"strconv"
)

// Type is the role a column plays in a model.
type Type string

const (
	// Numeric columns hold float64 values.
	Numeric Type = "numeric"
	// Categorical columns hold strings or bools compared by their string form.
	Categorical Type = "categorical"
	// Text columns hold free text expanded into per-term counts.
	Text Type = "text"
	// Derived columns are indicators computed from another column by an
	// external producer (naive Bayes documents only).
	Derived Type = "derived"
)

// Feature is a single model input.
type Feature struct {
	Name string
	Type Type
	// Values is the sorted training domain of a categorical feature. It is empty
	// when the domain is unknown or the feature is not categorical.
	Values []string
}

// Spec is the ordered list of model inputs, in training-time column order.
type Spec []Feature

// Lookup returns the feature with the given name.
func (s Spec) Lookup(name string) (Feature, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Feature{}, false
}

// Type returns the type of the named feature, or "" if s does not list it.
func (s Spec) Type(name string) Type {
	f, _ := s.Lookup(name)
	return f.Type
}

// Names returns the feature names in order.
func (s Spec) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// OfType returns the features of the given type, keeping order.
func (s Spec) OfType(t Type) Spec {
	var out Spec
	for _, f := range s {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// Set returns a copy of s with f replacing the feature of the same name, or
// appended when absent.
func (s Spec) Set(f Feature) Spec {
	out := make(Spec, 0, len(s)+1)
	replaced := false
	for _, g := range s {
		if g.Name == f.Name {
			out = append(out, f)
			replaced = true
			continue
		}
		out = append(out, g)
	}
	if !replaced {
		out = append(out, f)
	}
	return out
}

// KeyKind distinguishes the three shapes a model parameter key can take.
type KeyKind int

const (
	// KindField is a bare feature name.
	KindField KeyKind = iota
	// KindCategory is a (feature, category) pair.
	KindCategory
	// KindTerm is a (text feature, token) pair.
	KindTerm
)

// Key addresses a model input after encoding: a numeric column, one level of a
// categorical column, or one vocabulary term of a text column.
type Key struct {
	Name  string
	Value string
	Kind  KeyKind
}

// FieldKey returns the key of a bare column.
func FieldKey(name string) Key { return Key{Name: name} }

// CategoryKey returns the key of one level of a categorical column.
func CategoryKey(name, value string) Key {
	return Key{Name: name, Value: value, Kind: KindCategory}
}

// TermKey returns the key of one vocabulary term of a text column.
func TermKey(name, term string) Key {
	return Key{Name: name, Value: term, Kind: KindTerm}
}

// String renders the key the way summaries and documents name it:
// "name", "name=value" or "name(term)".
func (k Key) String() string {
	switch k.Kind {
	case KindCategory:
		return k.Name + "=" + k.Value
	case KindTerm:
		return k.Name + "(" + k.Value + ")"
	default:
		return k.Name
	}
}

// Stringify returns the canonical string form of a table value. Categorical
// comparisons, label encoding and document values all go through it.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}

// Domain returns the sorted distinct string forms of the non-nil values.
func Domain(values []any) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range values {
		if v == nil {
			continue
		}
		s := Stringify(v)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
