// Package convert implements the per-member format conversion engine: each
// ensemble member's raw artifacts are read through a plugin, converted, and
// written under an output tree mirroring the member's relative path, while a
// file-pointer table accumulates one row per member.
package convert

import (
	"context"
	"fmt"

	"github.com/enspipe/enspipe/internal/ctxlog"
	"github.com/enspipe/enspipe/internal/fsutil"
	"github.com/enspipe/enspipe/internal/plugin"
	"github.com/enspipe/enspipe/internal/pool"
	"github.com/enspipe/enspipe/internal/specifier"
	"github.com/enspipe/enspipe/internal/table"
)

// Options configure an Engine run.
type Options struct {
	// FileTemplate resolves each member's input files under its directory.
	FileTemplate string
	// InputFormat and OutputFormat name extension-style formats. An empty
	// input format is inferred per file.
	InputFormat  string
	OutputFormat string
	// OutputDir receives converted artifacts, mirroring member paths
	// relative to Root.
	OutputDir string
	Root      string
	// CSVHeader names the file-pointer column, "Conversion File" when
	// empty.
	CSVHeader string
	Workers   int
	Strict    bool
	Overwrite bool
}

// Result is the outcome of an Engine run.
type Result struct {
	// Members are the surviving members in index order; FailedIndexes the
	// member indices that failed.
	Members       []specifier.Member
	FailedIndexes []int
	// Outputs holds the written artifacts per surviving member.
	Outputs [][]string
}

// Engine drives conversions over an ensemble.
type Engine struct {
	plugin plugin.Plugin
	opts   Options
}

// NewEngine validates the options.
func NewEngine(p plugin.Plugin, opts Options) (*Engine, error) {
	if opts.FileTemplate == "" {
		return nil, fmt.Errorf("convert: input file template is required")
	}
	if opts.OutputFormat == "" {
		return nil, fmt.Errorf("convert: output format is required")
	}
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("convert: output directory is required")
	}
	if opts.CSVHeader == "" {
		opts.CSVHeader = "Conversion File"
	}
	return &Engine{plugin: p, opts: opts}, nil
}

// Run converts every member in parallel. Per-member failures are recorded
// and reported at the end unless Strict is set, in which case the first
// failure aborts the batch.
func (e *Engine) Run(ctx context.Context, members []specifier.Member) (*Result, error) {
	log := ctxlog.FromContext(ctx)
	if len(members) == 0 {
		return nil, fmt.Errorf("convert: no members to process")
	}

	results := pool.Run(ctx, e.opts.Workers, len(members), e.opts.Strict,
		func(ctx context.Context, i int) ([]string, error) {
			return e.convertMember(ctx, members[i])
		})
	if e.opts.Strict {
		if err := pool.Summarize(results); err != nil {
			return nil, err
		}
	}

	res := &Result{}
	for i, r := range results {
		if r.Err != nil {
			res.FailedIndexes = append(res.FailedIndexes, members[i].ID)
			continue
		}
		res.Members = append(res.Members, members[i])
		res.Outputs = append(res.Outputs, r.Value)
	}
	if len(res.Members) == 0 {
		return nil, fmt.Errorf("convert: every member failed: %w", pool.Summarize(results))
	}
	if len(res.FailedIndexes) > 0 {
		log.Warn("members failed to convert", "indices", res.FailedIndexes)
	}
	log.Info("conversion finished", "converted", len(res.Members), "failed", len(res.FailedIndexes))
	return res, nil
}

func (e *Engine) convertMember(ctx context.Context, m specifier.Member) ([]string, error) {
	files, err := specifier.ResolveFiles(m.Path, e.opts.FileTemplate)
	if err != nil {
		return nil, err
	}
	outDir, err := fsutil.MirrorPath(e.opts.OutputDir, e.opts.Root, m.Path)
	if err != nil {
		return nil, err
	}
	log := ctxlog.FromContext(ctx).With("member", m.ID)
	log.Debug("converting member", "files", len(files), "output_dir", outDir)

	return e.plugin.ConvertFiles(ctx, files, plugin.ConvertOptions{
		OutputDir:    outDir,
		InputFormat:  e.opts.InputFormat,
		OutputFormat: e.opts.OutputFormat,
		Overwrite:    e.opts.Overwrite,
	})
}

// LinksTable builds the output table: one row per surviving member with a
// file-pointer cell naming the member's primary artifact. Members that
// produced several artifacts contribute their first.
func (e *Engine) LinksTable(res *Result) (*table.Table, error) {
	ids := make([]int, len(res.Members))
	cells := make([]string, len(res.Members))
	for i, m := range res.Members {
		ids[i] = m.ID
		if len(res.Outputs[i]) == 0 {
			return nil, fmt.Errorf("convert: member %d produced no output", m.ID)
		}
		cells[i] = res.Outputs[i][0]
	}
	t := table.New(ids)
	err := t.AddColumn(table.Column{
		Header: e.opts.CSVHeader,
		Kind:   table.FilePointer,
		Cells:  cells,
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
