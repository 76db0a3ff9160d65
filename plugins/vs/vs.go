// Package vs implements the VideoSwarm plugin: per-member time-aligned
// trajectories referenced from a table column become the coordinate side
// files the VideoSwarm viewer loads next to its movie table.
//
// The expansion writes, next to the movie table:
//
//	<root>.xcoords       one row per timestep, one column per member (x)
//	<root>.ycoords       one row per timestep, one column per member (y)
//	<root>.trajectories  a time row followed by one x row per member
//
// with all coordinates scaled into the unit square.
package vs

import (
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/enspipe/enspipe/internal/ctxlog"
	"github.com/enspipe/enspipe/internal/field"
	"github.com/enspipe/enspipe/internal/fsutil"
	"github.com/enspipe/enspipe/internal/plugin"
	"github.com/enspipe/enspipe/internal/table"
)

// Options are the plugin's settings.
type Options struct {
	// FPS converts frame counts into the time row of the trajectories
	// file. Must be positive.
	FPS float64 `hcl:"video_fps,optional"`
}

// Plugin writes VideoSwarm input files.
type Plugin struct {
	plugin.Template
	opts Options
}

// New returns the plugin with default options.
func New() *Plugin { return &Plugin{opts: Options{FPS: 25}} }

func (p *Plugin) Name() string { return "vs" }

func (p *Plugin) Options() any { return &p.opts }

// ReadFile accepts only reduced numeric arrays.
func (p *Plugin) ReadFile(ctx context.Context, path, format string) (*field.Array, error) {
	if format == "" {
		format = field.Infer(path)
	}
	if format != "npy" && format != "npz" {
		return nil, &plugin.FormatError{Path: path, Format: format,
			Err: fmt.Errorf("videoswarm input must be npy or npz")}
	}
	return p.Template.ReadFile(ctx, path, format)
}

// Expand reads each cell of the expand column as a timesteps x dimensions
// trajectory, scales the first two dimensions into [0,1] jointly across
// members, and writes the coordinate side files. The returned table is the
// movie table to write alongside them, with the expanded column dropped
// when requested.
func (p *Plugin) Expand(ctx context.Context, t *table.Table, opts plugin.ExpandOptions) (*table.Table, error) {
	log := ctxlog.FromContext(ctx)
	if p.opts.FPS <= 0 {
		return nil, fmt.Errorf("vs plugin: video_fps must be positive, got %g", p.opts.FPS)
	}
	col, err := t.Column(opts.Header)
	if err != nil {
		return nil, err
	}

	var xcoords, ycoords [][]float64
	steps := -1
	for _, cell := range col.Cells {
		a, err := p.ReadFile(ctx, cell, "")
		if err != nil {
			return nil, err
		}
		m, err := a.Matrix()
		if err != nil {
			return nil, fmt.Errorf("vs plugin: %s: %w", cell, err)
		}
		rows, cols := m.Dims()
		if cols < 2 {
			return nil, fmt.Errorf("vs plugin: %s holds %d dimensions, need at least 2", cell, cols)
		}
		if steps == -1 {
			steps = rows
		} else if rows != steps {
			return nil, fmt.Errorf("vs plugin: %s has %d timesteps, expected %d", cell, rows, steps)
		}
		xs := make([]float64, rows)
		ys := make([]float64, rows)
		for r := 0; r < rows; r++ {
			xs[r] = m.At(r, 0)
			ys[r] = m.At(r, 1)
		}
		xcoords = append(xcoords, xs)
		ycoords = append(ycoords, ys)
	}
	scaleUnit(xcoords)
	scaleUnit(ycoords)

	root := "movies"
	if opts.OutputFile != "" {
		base := filepath.Base(opts.OutputFile)
		root = strings.TrimSuffix(base, filepath.Ext(base))
	}
	movies := len(xcoords)

	// Side files hold timesteps as rows and members as columns.
	byTime := func(coords [][]float64) [][]float64 {
		rows := make([][]float64, steps)
		for r := range rows {
			row := make([]float64, movies)
			for m := range coords {
				row[m] = coords[m][r]
			}
			rows[r] = row
		}
		return rows
	}
	xpath := filepath.Join(opts.OutputDir, root+".xcoords")
	ypath := filepath.Join(opts.OutputDir, root+".ycoords")
	if err := writeRows(xpath, byTime(xcoords), opts.Overwrite); err != nil {
		return nil, err
	}
	if err := writeRows(ypath, byTime(ycoords), opts.Overwrite); err != nil {
		return nil, err
	}

	// Trajectories lead with the time row, then one x row per member.
	duration := float64(steps) / p.opts.FPS
	traj := make([][]float64, 0, movies+1)
	timeRow := make([]float64, steps)
	for i := range timeRow {
		if steps > 1 {
			timeRow[i] = duration * float64(i) / float64(steps-1)
		}
	}
	traj = append(traj, timeRow)
	traj = append(traj, xcoords...)
	tpath := filepath.Join(opts.OutputDir, root+".trajectories")
	if err := writeRows(tpath, traj, opts.Overwrite); err != nil {
		return nil, err
	}
	log.Info("wrote videoswarm files", "movies", movies, "timesteps", steps,
		"xcoords", xpath, "ycoords", ypath, "trajectories", tpath)

	out := t.Clone()
	if opts.DropColumn {
		kept := table.New(out.Index())
		for _, c := range out.Columns() {
			if c.Header == col.Header {
				continue
			}
			if err := kept.AddColumn(c); err != nil {
				return nil, err
			}
		}
		out = kept
	}
	return out, nil
}

// scaleUnit rescales all values into [0,1] over their joint range. A
// constant axis collapses to 1/2.
func scaleUnit(coords [][]float64) {
	if len(coords) == 0 {
		return
	}
	lo, hi := coords[0][0], coords[0][0]
	for _, row := range coords {
		for _, v := range row {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	span := hi - lo
	for _, row := range coords {
		for i, v := range row {
			if span > 0 {
				row[i] = (v - lo) / span
			} else {
				row[i] = 0.5
			}
		}
	}
}

func writeRows(path string, rows [][]float64, overwrite bool) error {
	f, err := fsutil.Create(path, overwrite)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	record := []string{}
	for _, row := range rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'f', 6, 64))
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
