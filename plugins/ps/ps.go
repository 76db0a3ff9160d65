// Package ps implements the parameter-space plugin: per-member reduced
// arrays referenced from a table column are expanded into coordinate
// columns, one row per timestep, for scatter-plot display.
package ps

import (
	"context"
	"fmt"
	"strconv"

	"github.com/enspipe/enspipe/internal/ctxlog"
	"github.com/enspipe/enspipe/internal/field"
	"github.com/enspipe/enspipe/internal/plugin"
	"github.com/enspipe/enspipe/internal/table"
)

// Options are the plugin's settings.
type Options struct {
	// NumCoords is how many leading embedding dimensions become columns.
	// At least 2.
	NumCoords int `hcl:"num_coords,optional"`
}

// Plugin expands reduced arrays into coordinate columns.
type Plugin struct {
	plugin.Template
	opts Options
}

// New returns the plugin with default options.
func New() *Plugin { return &Plugin{opts: Options{NumCoords: 2}} }

func (p *Plugin) Name() string { return "ps" }

func (p *Plugin) Options() any { return &p.opts }

// ReadFile accepts only reduced numeric arrays.
func (p *Plugin) ReadFile(ctx context.Context, path, format string) (*field.Array, error) {
	if format == "" {
		format = field.Infer(path)
	}
	if format != "npy" && format != "npz" {
		return nil, &plugin.FormatError{Path: path, Format: format,
			Err: fmt.Errorf("parameter space input must be npy or npz")}
	}
	return p.Template.ReadFile(ctx, path, format)
}

// Expand reads each cell of the expand column as a timesteps x dimensions
// array, repeats the member's row once per timestep, and appends one column
// per requested embedding dimension.
func (p *Plugin) Expand(ctx context.Context, t *table.Table, opts plugin.ExpandOptions) (*table.Table, error) {
	log := ctxlog.FromContext(ctx)
	if p.opts.NumCoords < 2 {
		return nil, fmt.Errorf("ps plugin: num_coords must be at least 2, got %d", p.opts.NumCoords)
	}
	col, err := t.Column(opts.Header)
	if err != nil {
		return nil, err
	}

	numCoords := p.opts.NumCoords
	coords := make([][][]float64, t.NumRows())
	for i, cell := range col.Cells {
		a, err := p.ReadFile(ctx, cell, "")
		if err != nil {
			return nil, err
		}
		m, err := a.Matrix()
		if err != nil {
			return nil, fmt.Errorf("ps plugin: %s: %w", cell, err)
		}
		rows, cols := m.Dims()
		if cols < 2 {
			return nil, fmt.Errorf("ps plugin: %s holds %d dimensions, need at least 2", cell, cols)
		}
		if cols < numCoords {
			log.Warn("fewer dimensions than requested, truncating output",
				"file", cell, "have", cols, "requested", numCoords)
			numCoords = cols
		}
		steps := make([][]float64, rows)
		for r := 0; r < rows; r++ {
			row := make([]float64, cols)
			for c := 0; c < cols; c++ {
				row[c] = m.At(r, c)
			}
			steps[r] = row
		}
		coords[i] = steps
	}

	// Repeat each member's row once per timestep, keeping the pointer cell.
	groups := make([][]string, len(coords))
	for i, steps := range coords {
		g := make([]string, len(steps))
		for j := range g {
			g[j] = col.Cells[i]
		}
		groups[i] = g
	}
	header := col.Header
	out, err := table.Explode(t, opts.Header, groups, table.ExplodeOptions{
		OriginalIndexHeader: opts.OriginalIndexHeader,
		DropColumn:          opts.DropColumn,
	})
	if err != nil {
		return nil, err
	}

	for d := 0; d < numCoords; d++ {
		var cells []string
		for _, steps := range coords {
			for _, row := range steps {
				cells = append(cells, strconv.FormatFloat(row[d], 'g', -1, 64))
			}
		}
		name := fmt.Sprintf("%s Dimension %d", header, d+1)
		err := out.AddColumn(table.Column{Header: name, Kind: table.Numeric, Cells: cells})
		if err != nil {
			return nil, err
		}
	}
	if numCoords >= 2 {
		x := fmt.Sprintf("%s Dimension 1", header)
		y := fmt.Sprintf("%s Dimension 2", header)
		if err := out.TagXYPair(x, y); err != nil {
			return nil, err
		}
	}
	log.Info("expanded reduction column",
		"column", header, "rows", out.NumRows(), "dimensions", numCoords)
	return out, nil
}
