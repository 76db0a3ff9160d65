package reduce

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/enspipe/enspipe/internal/ctxlog"
	"github.com/enspipe/enspipe/internal/field"
	"github.com/enspipe/enspipe/internal/fsutil"
	"github.com/enspipe/enspipe/internal/plugin"
	"github.com/enspipe/enspipe/internal/pool"
	"github.com/enspipe/enspipe/internal/specifier"
	"github.com/enspipe/enspipe/internal/table"
)

// Failure reports one member the engine could not include: unreadable input,
// wrong shape, or an algorithm failure on its data.
type Failure struct {
	Member int
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("reduce: member %d: %v", f.Member, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Options configure an Engine run.
type Options struct {
	// Algorithm selects a registered reducer ("pca", "cmds").
	Algorithm string
	// NumDim is the target embedding dimension.
	NumDim int
	// AlignDim enables time alignment when nonzero: each timestep is
	// reduced to AlignDim dimensions, rotated into a consistent frame, and
	// truncated to NumDim. Must be at least NumDim.
	AlignDim int
	// Binary clips fields to {0, 1} before reduction.
	Binary bool
	// AutoCorrelate replaces each field with its periodic autocorrelation.
	// Requires Binary.
	AutoCorrelate bool
	// Scale rescales each field into [-0.5, 0.5].
	Scale bool
	// FieldVar selects a variable inside npz inputs.
	FieldVar string
	// Seed is handed to algorithms without an inherent determinism policy.
	Seed int64

	// FileTemplate resolves each member's input files under its directory.
	InputFormat  string
	FileTemplate string

	// OutputDir receives per-member artifacts, mirroring member paths
	// relative to Root. ArtifactName defaults to "out.rd.npy".
	OutputDir    string
	Root         string
	ArtifactName string

	Workers   int
	Strict    bool
	Overwrite bool
}

// Result is the outcome of an Engine run.
type Result struct {
	// Members holds the surviving members in index order; FailedIndexes
	// lists the member indices recorded as gaps.
	Members       []specifier.Member
	FailedIndexes []int

	// Frames are the per-timestep embeddings, rows parallel to Members.
	// Without time alignment there is a single frame.
	Frames []*mat.Dense
	// Embedding is the reference frame, the last timestep.
	Embedding *mat.Dense
	// Artifacts are the written per-member trajectory files, parallel to
	// Members.
	Artifacts []string
}

// Engine runs the reduction pipeline over an ensemble.
type Engine struct {
	plugin  plugin.Plugin
	reducer Reducer
	aligner Aligner
	opts    Options
}

// NewEngine validates the options and builds an engine using the named
// algorithm and Kabsch alignment.
func NewEngine(p plugin.Plugin, opts Options) (*Engine, error) {
	if opts.NumDim < 1 {
		return nil, fmt.Errorf("reduce: target dimension must be positive, got %d", opts.NumDim)
	}
	if opts.AlignDim != 0 && opts.AlignDim < opts.NumDim {
		return nil, fmt.Errorf("reduce: alignment dimension %d is below target dimension %d",
			opts.AlignDim, opts.NumDim)
	}
	if opts.AutoCorrelate && !opts.Binary {
		return nil, fmt.Errorf("reduce: autocorrelation requires binary fields")
	}
	if opts.ArtifactName == "" {
		opts.ArtifactName = "out.rd.npy"
	}
	r, err := NewReducer(opts.Algorithm, opts.Seed)
	if err != nil {
		return nil, err
	}
	return &Engine{plugin: p, reducer: r, aligner: Kabsch{}, opts: opts}, nil
}

// Run loads every member's fields, stacks them, reduces, aligns when
// requested, and writes per-member trajectory artifacts. Per-member
// failures become gaps unless Strict is set.
func (e *Engine) Run(ctx context.Context, members []specifier.Member) (*Result, error) {
	log := ctxlog.FromContext(ctx)
	if len(members) == 0 {
		return nil, fmt.Errorf("reduce: no members to process")
	}
	if e.opts.OutputDir != "" {
		for _, m := range members {
			p, err := e.artifactPath(m)
			if err != nil {
				return nil, err
			}
			if err := fsutil.CheckWritable(p, e.opts.Overwrite); err != nil {
				return nil, err
			}
		}
	}

	loads := pool.Run(ctx, e.opts.Workers, len(members), e.opts.Strict,
		func(ctx context.Context, i int) ([][]float64, error) {
			rows, err := e.load(ctx, members[i])
			if err != nil {
				return nil, &Failure{Member: members[i].ID, Err: err}
			}
			return rows, nil
		})
	if e.opts.Strict {
		if err := pool.Summarize(loads); err != nil {
			return nil, err
		}
	}

	res := &Result{}
	var series [][][]float64
	for i, r := range loads {
		if r.Err != nil {
			res.FailedIndexes = append(res.FailedIndexes, members[i].ID)
			continue
		}
		res.Members = append(res.Members, members[i])
		series = append(series, r.Value)
	}
	if len(res.Members) == 0 {
		return nil, fmt.Errorf("reduce: every member failed to load")
	}
	if len(res.FailedIndexes) > 0 {
		log.Warn("members excluded from reduction", "indices", res.FailedIndexes)
	}

	steps, features, err := uniformShape(series, res.Members)
	if err != nil {
		return nil, err
	}

	// Without alignment the whole series is one sample per member.
	if e.opts.AlignDim == 0 && steps > 1 {
		for i, rows := range series {
			flat := make([]float64, 0, steps*features)
			for _, row := range rows {
				flat = append(flat, row...)
			}
			series[i] = [][]float64{flat}
		}
		steps, features = 1, steps*features
	}

	dim := e.opts.NumDim
	if e.opts.AlignDim != 0 {
		dim = e.opts.AlignDim
	}
	frames := make([]*mat.Dense, steps)
	for t := 0; t < steps; t++ {
		m := mat.NewDense(len(series), features, nil)
		for i, rows := range series {
			m.SetRow(i, rows[t])
		}
		emb, err := e.reducer.FitTransform(ctx, m, dim)
		if err != nil {
			return nil, fmt.Errorf("reduce: timestep %d: %w", t, err)
		}
		frames[t] = emb
	}

	if e.opts.AlignDim != 0 && steps > 1 {
		if err := AlignSeries(frames, e.aligner); err != nil {
			return nil, err
		}
	}
	Truncate(frames, e.opts.NumDim)
	res.Frames = frames
	res.Embedding = frames[len(frames)-1]

	if e.opts.OutputDir != "" {
		res.Artifacts = make([]string, len(res.Members))
		for i, m := range res.Members {
			p, err := e.artifactPath(m)
			if err != nil {
				return nil, err
			}
			traj := mat.NewDense(steps, e.opts.NumDim, nil)
			for t, f := range frames {
				traj.SetRow(t, mat.Row(nil, i, f))
			}
			if err := field.WriteFile(field.FromMatrix(traj), p, "npy", e.opts.Overwrite); err != nil {
				return nil, &Failure{Member: m.ID, Err: err}
			}
			res.Artifacts[i] = p
		}
		log.Info("wrote member trajectories", "members", len(res.Members), "timesteps", steps)
	}
	return res, nil
}

// LinksTable builds a file-pointer table referencing the per-member
// artifacts. The header defaults to "Reduction File". The pointer column is
// marked for expansion so downstream table passes can explode it.
func (r *Result) LinksTable(header string) (*table.Table, error) {
	if r.Artifacts == nil {
		return nil, fmt.Errorf("reduce: no artifacts were written")
	}
	if header == "" {
		header = "Reduction File"
	}
	ids := make([]int, len(r.Members))
	for i, m := range r.Members {
		ids[i] = m.ID
	}
	t := table.New(ids)
	err := t.AddColumn(table.Column{
		Header: header,
		Kind:   table.FilePointer,
		Expand: true,
		Cells:  append([]string(nil), r.Artifacts...),
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// XYTable builds a two-column coordinate table from the first two embedding
// dimensions, tagged as an XY pair.
func (r *Result) XYTable(header string) (*table.Table, error) {
	_, d := r.Embedding.Dims()
	if d < 2 {
		return nil, fmt.Errorf("reduce: xy output needs at least 2 dimensions, have %d", d)
	}
	if header == "" {
		header = "Embedding"
	}
	ids := make([]int, len(r.Members))
	xs := make([]float64, len(r.Members))
	ys := make([]float64, len(r.Members))
	for i, m := range r.Members {
		ids[i] = m.ID
		xs[i] = r.Embedding.At(i, 0)
		ys[i] = r.Embedding.At(i, 1)
	}
	t := table.New(ids)
	xh, yh := header+" X", header+" Y"
	if err := t.AddNumeric(xh, xs); err != nil {
		return nil, err
	}
	if err := t.AddNumeric(yh, ys); err != nil {
		return nil, err
	}
	if err := t.TagXYPair(xh, yh); err != nil {
		return nil, err
	}
	return t, nil
}

func (e *Engine) artifactPath(m specifier.Member) (string, error) {
	dir, err := fsutil.MirrorPath(e.opts.OutputDir, e.opts.Root, m.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, e.opts.ArtifactName), nil
}

// load reads one member's input files and returns one feature vector per
// timestep, preprocessed.
func (e *Engine) load(ctx context.Context, m specifier.Member) ([][]float64, error) {
	files, err := specifier.ResolveFiles(m.Path, e.opts.FileTemplate)
	if err != nil {
		return nil, err
	}
	rows := make([][]float64, 0, len(files))
	for _, f := range files {
		a, err := e.readField(ctx, f)
		if err != nil {
			return nil, err
		}
		if e.opts.Binary {
			Binary(a)
		}
		if e.opts.AutoCorrelate {
			a, err = Autocorrelate(a)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f, err)
			}
		}
		if e.opts.Scale {
			Scale(a)
		}
		rows = append(rows, a.Flatten())
	}
	return rows, nil
}

func (e *Engine) readField(ctx context.Context, path string) (*field.Array, error) {
	if e.opts.FieldVar != "" && strings.EqualFold(filepath.Ext(path), ".npz") {
		return field.ReadNPZVar(path, e.opts.FieldVar)
	}
	return e.plugin.ReadFile(ctx, path, e.opts.InputFormat)
}

// uniformShape checks that every member contributed the same timestep count
// and feature length.
func uniformShape(series [][][]float64, members []specifier.Member) (steps, features int, err error) {
	steps = len(series[0])
	if steps == 0 {
		return 0, 0, &Failure{Member: members[0].ID, Err: fmt.Errorf("no input files resolved")}
	}
	features = len(series[0][0])
	for i, rows := range series {
		if len(rows) != steps {
			return 0, 0, &Failure{Member: members[i].ID,
				Err: fmt.Errorf("has %d timesteps, expected %d", len(rows), steps)}
		}
		for _, row := range rows {
			if len(row) != features {
				return 0, 0, &Failure{Member: members[i].ID,
					Err: fmt.Errorf("has %d features, expected %d", len(row), features)}
			}
		}
	}
	return steps, features, nil
}
