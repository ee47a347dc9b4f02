package table

import (
	"strings"
	"testing"

	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) *Table {
	t.Helper()
	tbl, err := FromColumns(
		Column{Name: "c1", Values: []any{"a", "b", "c"}},
		Column{Name: "c2", Values: []any{1, 2, 3}},
		Column{Name: "c3", Values: []any{true, false, true}},
	)
	require.NoError(t, err)
	return tbl
}

func TestFromRecords(t *testing.T) {
	tbl, err := FromRecords([]map[string]any{
		{"x": 1, "y": "a"},
		{"x": 2.5, "z": true},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y", "z"}, tbl.Names())
	assert.Equal(t, 2, tbl.Size())
	x, _ := tbl.Column("x")
	assert.Equal(t, []any{1.0, 2.5}, x)
	y, _ := tbl.Column("y")
	assert.Equal(t, []any{"a", nil}, y)
}

func TestFromRowsAndValues(t *testing.T) {
	tbl, err := FromRows([][]any{{1, "a"}, {2, "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x0", "x1"}, tbl.Names())
	assert.Equal(t, 2, tbl.Size())

	_, err = FromRows([][]any{{1, 2}, {3}})
	var dim *errors.DimensionError
	assert.True(t, errors.As(err, &dim))

	single, err := FromValues([]any{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"x0"}, single.Names())
	assert.Equal(t, 3, single.Size())

	empty, err := FromValues(nil)
	require.NoError(t, err)
	assert.True(t, empty.Empty())
	assert.Equal(t, 0, empty.Size())
}

type fakeFrame struct {
	names []string
	data  map[string][]any
}

func (f fakeFrame) ColumnNames() []string { return f.names }
func (f fakeFrame) ColumnValues(name string) []any { return f.data[name] }

func TestFromColumnar(t *testing.T) {
	tbl, err := FromColumnar(fakeFrame{
		names: []string{"b", "a"},
		data:  map[string][]any{"a": {1, 2}, "b": {"x", "y"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, tbl.Names())
}

type shade string

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{int8(3), 3.0},
		{uint64(4), 4.0},
		{float32(1.5), 1.5},
		{shade("dark"), "dark"},
		{nil, nil},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := Normalize(struct{}{})
	assert.Error(t, err)

	tbl := New()
	err = tbl.Set("bad", []any{[]int{1}})
	var mismatch *errors.TypeMismatchError
	assert.True(t, errors.As(err, &mismatch))
}

func TestSetLengthMismatch(t *testing.T) {
	tbl := sample(t)
	err := tbl.Set("c4", []any{1})
	var dim *errors.DimensionError
	assert.True(t, errors.As(err, &dim))

	require.NoError(t, tbl.Set("c2", []any{7, 8, 9}))
	assert.Equal(t, []string{"c1", "c2", "c3"}, tbl.Names())
}

func TestSliceRows(t *testing.T) {
	tbl := sample(t)
	require.NoError(t, tbl.SetLabel([]any{"l1", "l2", "l3"}))
	require.NoError(t, tbl.SetWeight([]float64{1, 2, 3}))

	one, err := tbl.Slice(Index(1), nil)
	require.NoError(t, err)
	want, err := FromColumns(
		Column{Name: "c1", Values: []any{"b"}},
		Column{Name: "c2", Values: []any{2}},
		Column{Name: "c3", Values: []any{false}},
	)
	require.NoError(t, err)
	require.NoError(t, want.SetLabel([]any{"l2"}))
	require.NoError(t, want.SetWeight([]float64{2}))
	assert.True(t, one.Equal(want))

	last, err := tbl.Slice(Index(-1), Names("c1"))
	require.NoError(t, err)
	c1, _ := last.Column("c1")
	assert.Equal(t, []any{"c"}, c1)

	tests := []struct {
		name string
		rows Rows
		want []any
	}{
		{"inclusive range", Range(0, 1), []any{"a", "b"}},
		{"negative end", Range(1, -1), []any{"b", "c"}},
		{"open ended", From(1), []any{"b", "c"}},
		{"clamped end", Range(1, 10), []any{"b", "c"}},
		{"list", Indices(2, 0), []any{"c", "a"}},
		{"all", AllRows(), []any{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tbl.Vector(tt.rows, "c1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = tbl.Slice(Index(3), nil)
	assert.Error(t, err)
}

func TestSliceColumns(t *testing.T) {
	tbl := sample(t)

	sub, err := tbl.Slice(nil, NameRange("c2", "c3"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c3"}, sub.Names())

	sub, err = tbl.Slice(nil, Names("c3", "c1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c3", "c1"}, sub.Names())

	_, err = tbl.Slice(nil, NameRange("c1", "c9"))
	var undefined *errors.UndefinedColumnError
	require.True(t, errors.As(err, &undefined))
	assert.Equal(t, "c9", undefined.Column)

	_, err = tbl.Slice(nil, Names("nope"))
	assert.True(t, errors.As(err, &undefined))

	v, err := tbl.At(2, "c2")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestDupIsStructural(t *testing.T) {
	tbl := sample(t)
	require.NoError(t, tbl.SetLabel([]any{1, 2, 3}))

	dup := tbl.Dup()
	assert.True(t, dup.Equal(tbl))

	_, ok := dup.Delete("c1")
	require.True(t, ok)
	col, _ := dup.Column("c2")
	col[0] = 100.0
	dup.Label()[0] = "changed"

	assert.Equal(t, []string{"c1", "c2", "c3"}, tbl.Names())
	orig, _ := tbl.Column("c2")
	assert.Equal(t, 1.0, orig[0])
	assert.Equal(t, 1.0, tbl.Label()[0])
	assert.False(t, dup.Equal(tbl))
}

func TestFloatsAndRows(t *testing.T) {
	tbl := sample(t)
	f, err := tbl.Floats("c2")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, f)

	_, err = tbl.Floats("c1")
	var mismatch *errors.TypeMismatchError
	assert.True(t, errors.As(err, &mismatch))

	_, err = tbl.Floats("zz")
	var missing *errors.MissingColumnError
	assert.True(t, errors.As(err, &missing))

	rows := tbl.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, map[string]any{"c1": "b", "c2": 2.0, "c3": false}, rows[1])
}

func TestLabelLength(t *testing.T) {
	tbl := sample(t)
	var dim *errors.DimensionError
	assert.True(t, errors.As(tbl.SetLabel([]any{1}), &dim))
	assert.True(t, errors.As(tbl.SetWeight([]float64{1}), &dim))
}

func TestReadCSV(t *testing.T) {
	input := "x,color,notes\n1,red,good\n2.5,,\n3,blue,fine\n"
	tbl, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "color", "notes"}, tbl.Names())
	x, _ := tbl.Column("x")
	assert.Equal(t, []any{1.0, 2.5, 3.0}, x)
	color, _ := tbl.Column("color")
	assert.Equal(t, []any{"red", nil, "blue"}, color)

	semi, err := ReadCSV(strings.NewReader("a;b\nNA;1\n"), WithComma(';'), WithNullValues("NA"))
	require.NoError(t, err)
	a, _ := semi.Column("a")
	assert.Equal(t, []any{nil}, a)
}
