package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/enspipe/enspipe/internal/fsutil"
)

// Header tags carried through CSV round trips. A tag is appended to the
// header text, e.g. "Movie X [XY Pair X]".
const (
	tagXYPairX = "[XY Pair X]"
	tagXYPairY = "[XY Pair Y]"
	tagExpand  = "[Expand]"
)

// WriteOptions configure WriteCSV.
type WriteOptions struct {
	// IncludeIndex writes the member index as the first column under
	// IndexHeader (default "Index").
	IncludeIndex bool
	IndexHeader  string
	// Headers selects a subset and order of columns to write. Empty means
	// all columns in table order.
	Headers []string
	// ExcludeHeaders removes columns from the written set.
	ExcludeHeaders []string
	// Overwrite allows replacing an existing file.
	Overwrite bool
}

// WriteCSV writes the table to path, encoding column tags into the header
// row. Refuses to replace an existing file unless Overwrite is set.
func WriteCSV(t *Table, path string, opts WriteOptions) error {
	f, err := fsutil.Create(path, opts.Overwrite)
	if err != nil {
		return err
	}
	if err := Write(t, f, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write writes the table as CSV to w.
func Write(t *Table, w io.Writer, opts WriteOptions) error {
	cols, err := selectColumns(t, opts.Headers, opts.ExcludeHeaders)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := make([]string, 0, len(cols)+1)
	if opts.IncludeIndex {
		h := opts.IndexHeader
		if h == "" {
			h = "Index"
		}
		header = append(header, h)
	}
	for _, c := range cols {
		header = append(header, taggedHeader(c))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, 0, len(header))
	for r := 0; r < t.NumRows(); r++ {
		row = row[:0]
		if opts.IncludeIndex {
			id := r
			if t.index != nil {
				id = t.index[r]
			}
			row = append(row, strconv.Itoa(id))
		}
		for _, c := range cols {
			row = append(row, c.Cells[r])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func selectColumns(t *Table, headers, exclude []string) ([]*Column, error) {
	var cols []*Column
	if len(headers) > 0 {
		for _, h := range headers {
			c, err := t.Column(h)
			if err != nil {
				return nil, err
			}
			cols = append(cols, c)
		}
	} else {
		for i := range t.columns {
			cols = append(cols, &t.columns[i])
		}
	}
	if len(exclude) == 0 {
		return cols, nil
	}
	drop := map[string]struct{}{}
	for _, h := range exclude {
		c, err := t.Column(h)
		if err != nil {
			return nil, err
		}
		drop[c.Header] = struct{}{}
	}
	kept := cols[:0]
	for _, c := range cols {
		if _, ok := drop[c.Header]; !ok {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

func taggedHeader(c *Column) string {
	h := c.Header
	switch c.XY {
	case XTag:
		h += " " + tagXYPairX
	case YTag:
		h += " " + tagXYPairY
	}
	if c.Expand {
		h += " " + tagExpand
	}
	return h
}

// ReadOptions configure ReadCSV.
type ReadOptions struct {
	// NoIndex treats the first column as data instead of the member index.
	NoIndex bool
}

// ReadCSV reads a CSV file written by WriteCSV, restoring column tags from
// the header row and inferring Numeric vs String kinds from the cells.
func ReadCSV(path string, opts ReadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("table: reading %s: %w", path, err)
	}
	return t, nil
}

// Read reads a CSV table from r.
func Read(r io.Reader, opts ReadOptions) (*Table, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty table")
	}
	header := records[0]
	rows := records[1:]

	first := 0
	var index []int
	if !opts.NoIndex {
		if len(header) == 0 {
			return nil, fmt.Errorf("missing index column")
		}
		first = 1
		index = make([]int, len(rows))
		for i, rec := range rows {
			id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
			if err != nil {
				return nil, fmt.Errorf("row %d: index %q is not an integer", i+1, rec[0])
			}
			index[i] = id
		}
	}

	t := New(index)
	for j := first; j < len(header); j++ {
		col := parseHeader(header[j])
		col.Cells = make([]string, len(rows))
		numeric := true
		for i, rec := range rows {
			if len(rec) != len(header) {
				return nil, fmt.Errorf("row %d has %d fields, want %d", i+1, len(rec), len(header))
			}
			col.Cells[i] = rec[j]
			if numeric && rec[j] != "" {
				if _, err := strconv.ParseFloat(rec[j], 64); err != nil {
					numeric = false
				}
			}
		}
		if col.Expand {
			col.Kind = FilePointer
		} else if !numeric {
			col.Kind = String
		}
		if err := t.AddColumn(col); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func parseHeader(h string) Column {
	col := Column{Kind: Numeric}
	for {
		switch {
		case strings.HasSuffix(h, tagXYPairX):
			col.XY = XTag
			h = strings.TrimSpace(strings.TrimSuffix(h, tagXYPairX))
		case strings.HasSuffix(h, tagXYPairY):
			col.XY = YTag
			h = strings.TrimSpace(strings.TrimSuffix(h, tagXYPairY))
		case strings.HasSuffix(h, tagExpand):
			col.Expand = true
			h = strings.TrimSpace(strings.TrimSuffix(h, tagExpand))
		default:
			col.Header = h
			return col
		}
	}
}
