package table

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// MissingPolicy controls how Join treats member indices absent from some of
// its inputs.
type MissingPolicy int

const (
	// DropMissing keeps only the indices present in every input.
	DropMissing MissingPolicy = iota
	// FillSentinel keeps the union of indices and fills absent cells with
	// the sentinel value.
	FillSentinel
)

// JoinOptions configure Join.
type JoinOptions struct {
	Missing  MissingPolicy
	Sentinel string
	// IgnoreIndex joins row-by-row positionally instead of aligning on
	// member index. All inputs must then have identical row counts.
	IgnoreIndex bool
	// StrictHeaders makes a header collision an error instead of renaming
	// the later column.
	StrictHeaders bool
	// Names label the inputs for collision renaming. Defaults to
	// "table-N" when empty.
	Names []string
}

// Join merges tables column-wise. Rows are aligned on member index unless
// IgnoreIndex is set. Colliding headers from later tables are suffixed with
// the source table's name.
func Join(tables []*Table, opts JoinOptions) (*Table, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("table: join requires at least one table")
	}
	name := func(i int) string {
		if i < len(opts.Names) && opts.Names[i] != "" {
			return opts.Names[i]
		}
		return fmt.Sprintf("table-%d", i+1)
	}

	if opts.IgnoreIndex {
		n := tables[0].NumRows()
		for i, tb := range tables[1:] {
			if tb.NumRows() != n {
				return nil, fmt.Errorf("table: ignore-index join needs equal row counts, table %d has %d rows, want %d",
					i+2, tb.NumRows(), n)
			}
		}
		out := New(nil)
		for i, tb := range tables {
			for _, c := range tb.columns {
				c.Cells = append([]string(nil), c.Cells...)
				if err := addRenaming(out, c, name(i), opts.StrictHeaders); err != nil {
					return nil, err
				}
			}
		}
		return out, nil
	}

	for i, tb := range tables {
		if tb.index == nil {
			return nil, fmt.Errorf("table: input %d has no index to join on", i+1)
		}
	}

	var index []int
	switch opts.Missing {
	case FillSentinel:
		all := make([][]int, len(tables))
		for i, tb := range tables {
			all[i] = tb.index
		}
		index = sortedUnion(all...)
	default:
		index = sortedUnion(tables[0].index)
		for _, tb := range tables[1:] {
			present := tb.rowOf()
			kept := index[:0]
			for _, id := range index {
				if _, ok := present[id]; ok {
					kept = append(kept, id)
				}
			}
			index = kept
		}
	}

	out := New(index)
	for i, tb := range tables {
		rows := tb.rowOf()
		for _, c := range tb.columns {
			cells := make([]string, len(index))
			for pos, id := range index {
				if r, ok := rows[id]; ok {
					cells[pos] = c.Cells[r]
				} else {
					cells[pos] = opts.Sentinel
				}
			}
			c.Cells = cells
			if err := addRenaming(out, c, name(i), opts.StrictHeaders); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func addRenaming(out *Table, col Column, source string, strict bool) error {
	collides := false
	for _, c := range out.columns {
		if c.Header == col.Header {
			collides = true
			break
		}
	}
	if collides {
		if strict {
			return fmt.Errorf("table: duplicate header %q", col.Header)
		}
		col.Header = fmt.Sprintf("%s (%s)", col.Header, source)
	}
	return out.AddColumn(col)
}

// Concat stacks tables row-wise. All inputs must carry identical headers in
// identical order. When originHeader is non-empty a column of that name is
// appended recording each row's source table name. The result is re-indexed
// sequentially from zero.
func Concat(tables []*Table, originHeader string, names []string) (*Table, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("table: concat requires at least one table")
	}
	want := tables[0].Headers()
	for i, tb := range tables[1:] {
		got := tb.Headers()
		if len(got) != len(want) {
			return nil, fmt.Errorf("table: concat input %d has %d columns, want %d", i+2, len(got), len(want))
		}
		for j := range want {
			if got[j] != want[j] {
				return nil, fmt.Errorf("table: concat input %d header %q does not match %q", i+2, got[j], want[j])
			}
		}
	}

	total := 0
	for _, tb := range tables {
		total += tb.NumRows()
	}
	index := make([]int, total)
	for i := range index {
		index[i] = i
	}
	out := New(index)
	for j, c := range tables[0].columns {
		cells := make([]string, 0, total)
		for _, tb := range tables {
			cells = append(cells, tb.columns[j].Cells...)
		}
		c.Cells = cells
		if err := out.AddColumn(c); err != nil {
			return nil, err
		}
	}
	if originHeader != "" {
		cells := make([]string, 0, total)
		for i, tb := range tables {
			label := fmt.Sprintf("table-%d", i+1)
			if i < len(names) && names[i] != "" {
				label = names[i]
			}
			for r := 0; r < tb.NumRows(); r++ {
				cells = append(cells, label)
			}
		}
		if err := out.AddColumn(Column{Header: originHeader, Kind: String, Cells: cells}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ExplodeOptions configure Explode.
type ExplodeOptions struct {
	// OriginalIndexHeader, when non-empty, adds a column recording the
	// source row's member index for each expanded row.
	OriginalIndexHeader string
	// DropColumn removes the exploded column from the result.
	DropColumn bool
}

// Explode replaces each row with one row per element of groups[row],
// substituting the elements into the named column. The remaining cells of
// the source row are repeated and the result is re-indexed sequentially.
func Explode(t *Table, header string, groups [][]string, opts ExplodeOptions) (*Table, error) {
	src, err := t.Column(header)
	if err != nil {
		return nil, err
	}
	if len(groups) != t.NumRows() {
		return nil, fmt.Errorf("table: explode got %d groups for %d rows", len(groups), t.NumRows())
	}

	total := 0
	for _, g := range groups {
		total += len(g)
	}
	index := make([]int, total)
	for i := range index {
		index[i] = i
	}
	out := New(index)
	for _, c := range t.columns {
		if opts.DropColumn && c.Header == src.Header {
			continue
		}
		cells := make([]string, 0, total)
		for row, g := range groups {
			for k := range g {
				if c.Header == src.Header {
					cells = append(cells, g[k])
				} else {
					cells = append(cells, c.Cells[row])
				}
			}
		}
		c.Cells = cells
		if c.Header == src.Header {
			c.Expand = false
		}
		if err := out.AddColumn(c); err != nil {
			return nil, err
		}
	}
	if opts.OriginalIndexHeader != "" {
		cells := make([]string, 0, total)
		for row, g := range groups {
			id := row
			if t.index != nil {
				id = t.index[row]
			}
			for range g {
				cells = append(cells, fmt.Sprintf("%d", id))
			}
		}
		if err := out.AddColumn(Column{Header: opts.OriginalIndexHeader, Kind: Numeric, Cells: cells}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ConvertURIs rewrites file pointer cells in the named columns into URIs by
// replacing the cells' common directory root with uriRoot. Path separators
// become forward slashes. Empty cells are left alone.
func ConvertURIs(t *Table, headers []string, uriRoot string) (*Table, error) {
	out := t.Clone()
	uriRoot = strings.TrimRight(uriRoot, "/")
	for _, h := range headers {
		col, err := out.Column(h)
		if err != nil {
			return nil, err
		}
		root := commonDir(col.Cells)
		for i, cell := range col.Cells {
			if cell == "" {
				continue
			}
			rel := filepath.ToSlash(cell)
			if root != "" {
				rel = strings.TrimPrefix(rel, root)
			}
			rel = strings.TrimPrefix(rel, "/")
			col.Cells[i] = uriRoot + "/" + rel
		}
		col.Kind = FilePointer
	}
	return out, nil
}

// commonDir returns the longest directory prefix shared by all non-empty
// cells, in slash form, or "" when there is none.
func commonDir(cells []string) string {
	var root string
	first := true
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		dir := path.Dir(filepath.ToSlash(cell))
		if first {
			root = dir
			first = false
			continue
		}
		for root != "" && root != "." && root != "/" && !strings.HasPrefix(dir+"/", root+"/") {
			root = path.Dir(root)
		}
	}
	if root == "." || root == "/" {
		return ""
	}
	return root
}
