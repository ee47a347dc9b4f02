// Package table provides Table, the column-oriented container every trainer,
// evaluator and encoder consumes.
//
// Tables are built once per call from caller input. Whatever the input shape
// (records, rows, a single vector, columns, a foreign columnar object or CSV),
// values are normalized at construction: Go integer and float kinds become
// float64, strings, bools and nil are kept, and anything else is rejected.
package table

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/YuminosukeSato/eps/pkg/errors"
)

// Table is an ordered map of column name to values, all of equal length, with
// an optional label vector and an optional weight vector of the same length.
type Table struct {
	names   []string
	columns map[string][]any
	label   []any
	weight  []float64
}

// Column is a named vector used to build tables.
type Column struct {
	Name   string
	Values []any
}

// Columnar is implemented by foreign column stores that can be read as a list
// of named vectors.
type Columnar interface {
	ColumnNames() []string
	ColumnValues(name string) []any
}

// New returns an empty table.
func New() *Table {
	return &Table{columns: make(map[string][]any)}
}

// FromRecords builds a table from row maps. Column order is the order in which
// keys are first seen, visiting the keys of each record in sorted order. Keys a
// record lacks become nil.
func FromRecords(records []map[string]any) (*Table, error) {
	t := New()
	var names []string
	seen := make(map[string]struct{})
	for _, r := range records {
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				names = append(names, k)
			}
		}
	}
	for _, name := range names {
		values := make([]any, len(records))
		for i, r := range records {
			values[i] = r[name]
		}
		if err := t.Set(name, values); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// FromRows builds a table from positional rows; columns are named x0..xn.
func FromRows(rows [][]any) (*Table, error) {
	t := New()
	if len(rows) == 0 {
		return t, nil
	}
	width := len(rows[0])
	for i, r := range rows {
		if len(r) != width {
			return nil, errors.Wrapf(errors.NewDimensionError("table.FromRows", width, len(r), 1), "row %d", i)
		}
	}
	for j := 0; j < width; j++ {
		values := make([]any, len(rows))
		for i, r := range rows {
			values[i] = r[j]
		}
		if err := t.Set(fmt.Sprintf("x%d", j), values); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// FromValues builds a single-column table named x0.
func FromValues(values []any) (*Table, error) {
	t := New()
	if len(values) == 0 {
		return t, nil
	}
	if err := t.Set("x0", values); err != nil {
		return nil, err
	}
	return t, nil
}

// FromColumns builds a table from named vectors, keeping their order.
func FromColumns(cols ...Column) (*Table, error) {
	t := New()
	for _, c := range cols {
		if err := t.Set(c.Name, c.Values); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// FromColumnar copies a foreign column store into a table.
func FromColumnar(src Columnar) (*Table, error) {
	t := New()
	for _, name := range src.ColumnNames() {
		if err := t.Set(name, src.ColumnValues(name)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Set adds or replaces a column. The values are normalized and copied.
func (t *Table) Set(name string, values []any) error {
	if t.columns == nil {
		t.columns = make(map[string][]any)
	}
	if n := t.Size(); len(t.names) > 0 && len(values) != n && !(len(t.names) == 1 && t.Has(name)) {
		return errors.Wrapf(errors.NewDimensionError("table.Set", n, len(values), 0), "column %s", name)
	}
	normalized := make([]any, len(values))
	for i, v := range values {
		nv, err := Normalize(v)
		if err != nil {
			return errors.NewTypeMismatchError("table.Set", name, "number, string, bool or nil", fmt.Sprintf("%T", v))
		}
		normalized[i] = nv
	}
	if !t.Has(name) {
		t.names = append(t.names, name)
	}
	t.columns[name] = normalized
	return nil
}

// Normalize converts a Go value into the representation tables store.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	}
	// Named types such as `type Color string`.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Ptr:
		if rv.IsNil() {
			return nil, nil
		}
		return Normalize(rv.Elem().Interface())
	}
	return nil, errors.Newf("unsupported value type %T", v)
}

// Size is the number of rows, taken from the first column.
func (t *Table) Size() int {
	if len(t.names) == 0 {
		return 0
	}
	return len(t.columns[t.names[0]])
}

// Empty reports whether the table has no columns.
func (t *Table) Empty() bool {
	return len(t.names) == 0
}

// Names returns the column names in declaration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Has reports whether the column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// Column returns the values of a column. The slice is shared with the table.
func (t *Table) Column(name string) ([]any, bool) {
	v, ok := t.columns[name]
	return v, ok
}

// Floats returns a numeric column as float64s.
func (t *Table) Floats(name string) ([]float64, error) {
	values, ok := t.columns[name]
	if !ok {
		return nil, errors.NewMissingColumnError("table.Floats", name)
	}
	out := make([]float64, len(values))
	for i, v := range values {
		f, ok := v.(float64)
		if !ok {
			if v == nil {
				return nil, errors.NewMissingValueError("table.Floats", name)
			}
			return nil, errors.NewTypeMismatchError("table.Floats", name, "numeric", fmt.Sprintf("%T", v))
		}
		out[i] = f
	}
	return out, nil
}

// Delete removes a column and returns its values.
func (t *Table) Delete(name string) ([]any, bool) {
	values, ok := t.columns[name]
	if !ok {
		return nil, false
	}
	delete(t.columns, name)
	for i, n := range t.names {
		if n == name {
			t.names = append(t.names[:i:i], t.names[i+1:]...)
			break
		}
	}
	return values, true
}

// Label returns the label vector, or nil.
func (t *Table) Label() []any { return t.label }

// Weight returns the weight vector, or nil.
func (t *Table) Weight() []float64 { return t.weight }

// SetLabel attaches a label vector. Its length must match Size unless the
// table has no columns.
func (t *Table) SetLabel(label []any) error {
	if label != nil && !t.Empty() && len(label) != t.Size() {
		return errors.NewDimensionError("table.SetLabel", t.Size(), len(label), 0)
	}
	normalized := make([]any, len(label))
	for i, v := range label {
		nv, err := Normalize(v)
		if err != nil {
			return errors.NewTypeMismatchError("table.SetLabel", "label", "number, string, bool or nil", fmt.Sprintf("%T", v))
		}
		normalized[i] = nv
	}
	if label == nil {
		normalized = nil
	}
	t.label = normalized
	return nil
}

// SetWeight attaches a weight vector.
func (t *Table) SetWeight(weight []float64) error {
	if weight != nil && !t.Empty() && len(weight) != t.Size() {
		return errors.NewDimensionError("table.SetWeight", t.Size(), len(weight), 0)
	}
	t.weight = weight
	return nil
}

// Dup returns a structural copy: column slices, label and weight are copied so
// the copy can be modified without touching t.
func (t *Table) Dup() *Table {
	out := &Table{
		names:   make([]string, len(t.names)),
		columns: make(map[string][]any, len(t.columns)),
	}
	copy(out.names, t.names)
	for name, values := range t.columns {
		out.columns[name] = append([]any(nil), values...)
	}
	if t.label != nil {
		out.label = append([]any(nil), t.label...)
	}
	if t.weight != nil {
		out.weight = append([]float64(nil), t.weight...)
	}
	return out
}

// Take returns a new table holding the rows at idx, in that order, with the
// matching label and weight entries.
func (t *Table) Take(idx []int) *Table {
	out := &Table{
		names:   make([]string, len(t.names)),
		columns: make(map[string][]any, len(t.columns)),
	}
	copy(out.names, t.names)
	for name, values := range t.columns {
		col := make([]any, len(idx))
		for i, j := range idx {
			col[i] = values[j]
		}
		out.columns[name] = col
	}
	if t.label != nil {
		out.label = make([]any, len(idx))
		for i, j := range idx {
			out.label[i] = t.label[j]
		}
	}
	if t.weight != nil {
		out.weight = make([]float64, len(idx))
		for i, j := range idx {
			out.weight[i] = t.weight[j]
		}
	}
	return out
}

// Row returns row i as a map.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.names))
	for _, name := range t.names {
		row[name] = t.columns[name][i]
	}
	return row
}

// Rows returns every row as a map.
func (t *Table) Rows() []map[string]any {
	rows := make([]map[string]any, t.Size())
	for i := range rows {
		rows[i] = t.Row(i)
	}
	return rows
}

// Equal reports whether both tables have the same columns in the same order,
// the same values, and the same label and weight.
func (t *Table) Equal(o *Table) bool {
	if o == nil || len(t.names) != len(o.names) {
		return false
	}
	for i, name := range t.names {
		if o.names[i] != name || !sameValues(t.columns[name], o.columns[name]) {
			return false
		}
	}
	if !sameValues(t.label, o.label) || len(t.weight) != len(o.weight) {
		return false
	}
	for i, w := range t.weight {
		if o.weight[i] != w {
			return false
		}
	}
	return true
}

func sameValues(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
