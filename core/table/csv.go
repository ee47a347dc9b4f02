package table

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/eps/pkg/errors"
)

type csvConfig struct {
	comma      rune
	nullValues map[string]struct{}
}

// CSVOption configures ReadCSV.
type CSVOption func(*csvConfig)

// WithComma sets the field delimiter.
func WithComma(r rune) CSVOption {
	return func(c *csvConfig) { c.comma = r }
}

// WithNullValues sets the cell contents read as nil. The default is the empty string.
func WithNullValues(values ...string) CSVOption {
	return func(c *csvConfig) {
		c.nullValues = make(map[string]struct{}, len(values))
		for _, v := range values {
			c.nullValues[v] = struct{}{}
		}
	}
}

// ReadCSV reads a table from CSV with a header row. A column whose non-null
// cells all parse as floats becomes numeric; any other column keeps its cells
// as strings.
func ReadCSV(r io.Reader, opts ...CSVOption) (*Table, error) {
	cfg := &csvConfig{comma: ',', nullValues: map[string]struct{}{"": {}}}
	for _, opt := range opts {
		opt(cfg)
	}

	reader := csv.NewReader(r)
	reader.Comma = cfg.comma
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "table.ReadCSV")
	}
	if len(records) == 0 {
		return New(), nil
	}

	header := records[0]
	body := records[1:]
	cols := make([]Column, len(header))
	for j, name := range header {
		cells := make([]string, len(body))
		for i, rec := range body {
			cells[i] = rec[j]
		}
		cols[j] = Column{Name: strings.TrimSpace(name), Values: parseCells(cells, cfg.nullValues)}
	}
	return FromColumns(cols...)
}

func parseCells(cells []string, nulls map[string]struct{}) []any {
	values := make([]any, len(cells))
	numeric := true
	for i, c := range cells {
		if _, ok := nulls[c]; ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			numeric = false
			break
		}
		values[i] = f
	}
	if numeric {
		return values
	}
	for i, c := range cells {
		if _, ok := nulls[c]; ok {
			values[i] = nil
			continue
		}
		values[i] = c
	}
	return values
}
