package table

import (
	"fmt"

	"github.com/YuminosukeSato/eps/pkg/errors"
)

// Rows selects row positions. Negative positions count from the end.
type Rows interface {
	resolve(size int) ([]int, error)
}

// Cols selects columns by name.
type Cols interface {
	resolve(names []string) ([]string, error)
}

type rowIndex int

// Index selects a single row.
func Index(i int) Rows { return rowIndex(i) }

func (r rowIndex) resolve(size int) ([]int, error) {
	i := int(r)
	if i < 0 {
		i += size
	}
	if i < 0 || i >= size {
		return nil, errors.NewValueError("table.Slice", fmt.Sprintf("row %d out of range for %d rows", int(r), size))
	}
	return []int{i}, nil
}

type rowRange struct {
	start, end int
	open       bool
}

// Range selects rows start..end inclusive. An end past the last row is clamped.
func Range(start, end int) Rows { return rowRange{start: start, end: end} }

// From selects rows from start to the last row.
func From(start int) Rows { return rowRange{start: start, open: true} }

// AllRows selects every row.
func AllRows() Rows { return From(0) }

func (r rowRange) resolve(size int) ([]int, error) {
	start, end := r.start, r.end
	if start < 0 {
		start += size
	}
	if r.open {
		end = size - 1
	} else if end < 0 {
		end += size
	}
	if start < 0 || start > size {
		return nil, errors.NewValueError("table.Slice", fmt.Sprintf("range start %d out of range for %d rows", r.start, size))
	}
	if end >= size {
		end = size - 1
	}
	idx := make([]int, 0, max(end-start+1, 0))
	for i := start; i <= end; i++ {
		idx = append(idx, i)
	}
	return idx, nil
}

type rowList []int

// Indices selects an explicit list of rows, in the given order.
func Indices(idx ...int) Rows { return rowList(idx) }

func (r rowList) resolve(size int) ([]int, error) {
	out := make([]int, len(r))
	for k, i := range r {
		resolved, err := rowIndex(i).resolve(size)
		if err != nil {
			return nil, err
		}
		out[k] = resolved[0]
	}
	return out, nil
}

type colNames []string

// Names selects columns by name, in the given order.
func Names(names ...string) Cols { return colNames(names) }

func (c colNames) resolve(declared []string) ([]string, error) {
	known := make(map[string]struct{}, len(declared))
	for _, n := range declared {
		known[n] = struct{}{}
	}
	for _, n := range c {
		if _, ok := known[n]; !ok {
			return nil, errors.NewUndefinedColumnError(n)
		}
	}
	return append([]string(nil), c...), nil
}

type colRange struct {
	from, to string
}

// NameRange selects the columns from one name to another, inclusive, following
// declaration order.
func NameRange(from, to string) Cols { return colRange{from: from, to: to} }

func (c colRange) resolve(declared []string) ([]string, error) {
	start, end := -1, -1
	for i, n := range declared {
		if n == c.from {
			start = i
		}
		if n == c.to {
			end = i
		}
	}
	if start < 0 {
		return nil, errors.NewUndefinedColumnError(c.from)
	}
	if end < 0 {
		return nil, errors.NewUndefinedColumnError(c.to)
	}
	if end < start {
		return []string{}, nil
	}
	return append([]string(nil), declared[start:end+1]...), nil
}

type allCols struct{}

// AllCols selects every column.
func AllCols() Cols { return allCols{} }

func (allCols) resolve(declared []string) ([]string, error) {
	return append([]string(nil), declared...), nil
}

// Slice returns a new table with the selected rows and columns. A nil rows or
// cols selects everything. Label and weight follow the selected rows.
func (t *Table) Slice(rows Rows, cols Cols) (*Table, error) {
	if rows == nil {
		rows = AllRows()
	}
	if cols == nil {
		cols = AllCols()
	}
	idx, err := rows.resolve(t.Size())
	if err != nil {
		return nil, err
	}
	names, err := cols.resolve(t.names)
	if err != nil {
		return nil, err
	}

	sub := t.Take(idx)
	out := &Table{columns: make(map[string][]any, len(names)), label: sub.label, weight: sub.weight}
	for _, n := range names {
		if _, dup := out.columns[n]; dup {
			continue
		}
		out.names = append(out.names, n)
		out.columns[n] = sub.columns[n]
	}
	return out, nil
}

// Vector returns the selected rows of a single column.
func (t *Table) Vector(rows Rows, name string) ([]any, error) {
	sub, err := t.Slice(rows, Names(name))
	if err != nil {
		return nil, err
	}
	return sub.columns[name], nil
}

// At returns a single cell.
func (t *Table) At(row int, name string) (any, error) {
	values, err := t.Vector(Index(row), name)
	if err != nil {
		return nil, err
	}
	return values[0], nil
}
