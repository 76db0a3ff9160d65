// Package table implements the in-memory tabular model shared by the
// pipeline: rows keyed by ensemble member index, typed columns, and the
// join/concat/expand/convert operations that reshape them. Operations are
// pure with respect to their inputs and return new tables.
package table

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind classifies a column's cell values.
type Kind int

const (
	// Numeric cells parse as floats.
	Numeric Kind = iota
	// String cells are opaque text.
	String
	// FilePointer cells reference an output artifact on disk.
	FilePointer
)

// XYTag marks a numeric column as one half of a coordinate pair recognized
// by downstream scatter-plot tooling.
type XYTag int

const (
	NoTag XYTag = iota
	XTag
	YTag
)

// Column is one typed column. Cells are stored in serialized form; Kind and
// the tag fields are metadata, not a structural change to the data.
type Column struct {
	Header string
	Kind   Kind
	XY     XYTag
	// Expand marks a column whose cells reference composite artifacts to be
	// expanded by a plugin.
	Expand bool
	Cells  []string
}

// Table is an ordered collection of columns over rows keyed by member index.
// A nil index means the table was built positionally (ignore-index).
type Table struct {
	index   []int
	columns []Column
}

// New creates a table keyed by the given member indices. Pass nil for a
// positional table.
func New(index []int) *Table {
	return &Table{index: append([]int(nil), index...)}
}

// Index returns the member indices backing the rows, or nil for a positional
// table.
func (t *Table) Index() []int { return t.index }

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if t.index != nil {
		return len(t.index)
	}
	if len(t.columns) == 0 {
		return 0
	}
	return len(t.columns[0].Cells)
}

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.columns) }

// Headers returns the column headers in order.
func (t *Table) Headers() []string {
	hs := make([]string, len(t.columns))
	for i, c := range t.columns {
		hs[i] = c.Header
	}
	return hs
}

// Columns returns the columns in order. The slice is shared, not copied.
func (t *Table) Columns() []Column { return t.columns }

// AddColumn appends a column. Headers must be unique and the cell count must
// match the table's row count (or define it for the first column of a
// positional table).
func (t *Table) AddColumn(col Column) error {
	for _, c := range t.columns {
		if c.Header == col.Header {
			return fmt.Errorf("table: duplicate column header %q", col.Header)
		}
	}
	if t.index != nil && len(col.Cells) != len(t.index) {
		return fmt.Errorf("table: column %q has %d cells, table has %d rows",
			col.Header, len(col.Cells), len(t.index))
	}
	if t.index == nil && len(t.columns) > 0 && len(col.Cells) != t.NumRows() {
		return fmt.Errorf("table: column %q has %d cells, table has %d rows",
			col.Header, len(col.Cells), t.NumRows())
	}
	t.columns = append(t.columns, col)
	return nil
}

// AddNumeric appends a numeric column from float values.
func (t *Table) AddNumeric(header string, vals []float64) error {
	cells := make([]string, len(vals))
	for i, v := range vals {
		cells[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return t.AddColumn(Column{Header: header, Kind: Numeric, Cells: cells})
}

// Column looks a column up by header name, or by zero-based position when
// the name is an integer that matches no header.
func (t *Table) Column(header string) (*Column, error) {
	for i := range t.columns {
		if t.columns[i].Header == header {
			return &t.columns[i], nil
		}
	}
	if pos, err := strconv.Atoi(header); err == nil && pos >= 0 && pos < len(t.columns) {
		return &t.columns[pos], nil
	}
	return nil, fmt.Errorf("table: no column %q", header)
}

// TagXYPair marks two numeric columns as an XY coordinate pair.
func (t *Table) TagXYPair(xHeader, yHeader string) error {
	x, err := t.Column(xHeader)
	if err != nil {
		return err
	}
	y, err := t.Column(yHeader)
	if err != nil {
		return err
	}
	x.XY, y.XY = XTag, YTag
	return nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := New(t.index)
	for _, c := range t.columns {
		c.Cells = append([]string(nil), c.Cells...)
		out.columns = append(out.columns, c)
	}
	return out
}

// rowOf maps member index to row position.
func (t *Table) rowOf() map[int]int {
	m := make(map[int]int, len(t.index))
	for pos, id := range t.index {
		m[id] = pos
	}
	return m
}

// sortedUnion returns the ascending union of the given index slices.
func sortedUnion(indexes ...[]int) []int {
	seen := map[int]struct{}{}
	var out []int
	for _, idx := range indexes {
		for _, id := range idx {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	sort.Ints(out)
	return out
}
