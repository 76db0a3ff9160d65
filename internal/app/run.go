package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/enspipe/enspipe/internal/convert"
	"github.com/enspipe/enspipe/internal/ctxlog"
	"github.com/enspipe/enspipe/internal/plugin"
	"github.com/enspipe/enspipe/internal/pool"
	"github.com/enspipe/enspipe/internal/reduce"
	"github.com/enspipe/enspipe/internal/specifier"
	"github.com/enspipe/enspipe/internal/table"
)

// Run executes the configured subcommand.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("run started", "command", a.config.Command)

	var err error
	switch a.config.Command {
	case "convert":
		err = a.runConvert(ctx)
	case "reduce":
		err = a.runReduce(ctx)
	case "table":
		err = a.runTable(ctx)
	default:
		err = fmt.Errorf("internal: unknown command %q", a.config.Command)
	}
	if err != nil {
		return err
	}
	a.logger.Debug("run finished", "command", a.config.Command)
	return nil
}

func (a *App) runConvert(ctx context.Context) error {
	cfg := a.config
	members, err := specifier.Resolve(cfg.Ensemble, specifier.Options{})
	if err != nil {
		return err
	}
	a.logger.Info("ensemble resolved", "members", len(members))

	eng, err := convert.NewEngine(a.plugin, convert.Options{
		FileTemplate: cfg.InputFiles,
		InputFormat:  cfg.InputFormat,
		OutputFormat: cfg.OutputFormat,
		OutputDir:    cfg.OutputDir,
		Root:         specifier.Root(cfg.Ensemble),
		CSVHeader:    cfg.CSVHeader,
		Workers:      cfg.Workers,
		Strict:       cfg.Strict,
		Overwrite:    cfg.Overwrite,
	})
	if err != nil {
		return err
	}
	res, err := eng.Run(ctx, members)
	if err != nil {
		return err
	}
	if cfg.OutputFile != "" {
		t, err := eng.LinksTable(res)
		if err != nil {
			return err
		}
		if err := a.writeTable(t, cfg.OutputFile); err != nil {
			return err
		}
		a.logger.Info("wrote conversion table", "path", cfg.OutputFile, "rows", t.NumRows())
	}
	a.reportGaps(res.FailedIndexes)
	return nil
}

func (a *App) runReduce(ctx context.Context) error {
	cfg := a.config
	members, err := specifier.Resolve(cfg.Ensemble, specifier.Options{})
	if err != nil {
		return err
	}
	a.logger.Info("ensemble resolved", "members", len(members))

	eng, err := reduce.NewEngine(a.plugin, reduce.Options{
		Algorithm:     cfg.Algorithm,
		NumDim:        cfg.NumDim,
		AlignDim:      cfg.TimeAlign,
		Binary:        cfg.Binary,
		AutoCorrelate: cfg.AutoCorrelate,
		Scale:         cfg.Scale,
		FieldVar:      cfg.FieldVar,
		Seed:          cfg.Seed,
		InputFormat:   cfg.InputFormat,
		FileTemplate:  cfg.InputFiles,
		OutputDir:     cfg.OutputDir,
		Root:          specifier.Root(cfg.Ensemble),
		ArtifactName:  cfg.OutputFile,
		Workers:       cfg.Workers,
		Strict:        cfg.Strict,
		Overwrite:     cfg.Overwrite,
	})
	if err != nil {
		return err
	}
	res, err := eng.Run(ctx, members)
	if err != nil {
		return err
	}

	if cfg.CSVOut != "" {
		t, err := res.LinksTable(cfg.CSVHeader)
		if err != nil {
			return err
		}
		if err := a.writeTable(t, cfg.CSVOut); err != nil {
			return err
		}
		a.logger.Info("wrote links table", "path", cfg.CSVOut, "rows", t.NumRows())
	}
	if cfg.XYOut != "" {
		t, err := res.XYTable(cfg.XYHeader)
		if err != nil {
			return err
		}
		if err := a.writeTable(t, cfg.XYOut); err != nil {
			return err
		}
		a.logger.Info("wrote xy table", "path", cfg.XYOut, "rows", t.NumRows())
	}
	a.reportGaps(res.FailedIndexes)
	return nil
}

func (a *App) runTable(ctx context.Context) error {
	cfg := a.config

	var (
		out *table.Table
		err error
	)
	switch {
	case cfg.Join:
		var tables []*table.Table
		if tables, err = a.readTables(); err != nil {
			return err
		}
		missing := table.DropMissing
		if cfg.FillMissing {
			missing = table.FillSentinel
		}
		out, err = table.Join(tables, table.JoinOptions{
			Missing:       missing,
			Sentinel:      cfg.MissingValue,
			IgnoreIndex:   cfg.IgnoreIndex,
			StrictHeaders: cfg.Strict,
			Names:         cfg.OriginNames,
		})
	case cfg.Concat:
		var tables []*table.Table
		if tables, err = a.readTables(); err != nil {
			return err
		}
		out, err = table.Concat(tables, cfg.OriginHeader, cfg.OriginNames)
	case cfg.Expand:
		var in *table.Table
		if in, err = table.ReadCSV(cfg.TableInputs[0], table.ReadOptions{NoIndex: cfg.NoIndex}); err != nil {
			return err
		}
		out, err = a.plugin.Expand(ctx, in, plugin.ExpandOptions{
			Header:              cfg.ExpandHeader,
			OutputDir:           cfg.OutputDir,
			OutputFile:          cfg.OutputFile,
			OriginalIndexHeader: cfg.OriginHeader,
			DropColumn:          cfg.DropExpandCol,
			Overwrite:           cfg.Overwrite,
		})
	case cfg.ConvertURIs:
		var in *table.Table
		if in, err = table.ReadCSV(cfg.TableInputs[0], table.ReadOptions{NoIndex: cfg.NoIndex}); err != nil {
			return err
		}
		out, err = table.ConvertURIs(in, cfg.URIColumns, cfg.URIRoot)
	case cfg.Create:
		out, err = a.createTable(ctx)
	}
	if err != nil {
		return err
	}

	if err := a.writeTable(out, cfg.OutputFile); err != nil {
		return err
	}
	a.logger.Info("wrote table", "path", cfg.OutputFile, "rows", out.NumRows(), "columns", out.NumCols())
	return nil
}

// createTable builds a metadata table from each member's input deck: one row
// per member, one column per key seen in any deck, blank where a member's
// deck lacks the key.
func (a *App) createTable(ctx context.Context) (*table.Table, error) {
	cfg := a.config
	members, err := specifier.Resolve(cfg.Ensemble, specifier.Options{})
	if err != nil {
		return nil, err
	}
	a.logger.Info("ensemble resolved", "members", len(members))

	decks := pool.Run(ctx, cfg.Workers, len(members), cfg.Strict,
		func(ctx context.Context, i int) (map[string]string, error) {
			files, err := specifier.ResolveFiles(members[i].Path, cfg.InputFiles)
			if err != nil {
				return nil, err
			}
			return a.plugin.ReadInputDeck(ctx, files)
		})
	if cfg.Strict {
		if err := pool.Summarize(decks); err != nil {
			return nil, err
		}
	}

	var (
		ids    []int
		rows   []map[string]string
		failed []int
	)
	for i, d := range decks {
		if d.Err != nil {
			failed = append(failed, members[i].ID)
			continue
		}
		ids = append(ids, members[i].ID)
		rows = append(rows, d.Value)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("table: every input deck failed to parse: %w", pool.Summarize(decks))
	}
	a.reportGaps(failed)

	seen := map[string]struct{}{}
	var keys []string
	for _, r := range rows {
		for k := range r {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	t := table.New(ids)
	for _, k := range keys {
		cells := make([]string, len(rows))
		for i, r := range rows {
			cells[i] = r[k]
		}
		err := t.AddColumn(table.Column{Header: k, Kind: table.String, Cells: cells})
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (a *App) readTables() ([]*table.Table, error) {
	tables := make([]*table.Table, len(a.config.TableInputs))
	for i, path := range a.config.TableInputs {
		t, err := table.ReadCSV(path, table.ReadOptions{NoIndex: a.config.NoIndex})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		tables[i] = t
	}
	return tables, nil
}

func (a *App) writeTable(t *table.Table, path string) error {
	return table.WriteCSV(t, path, table.WriteOptions{
		IncludeIndex:   !a.config.OutputNoIndex,
		IndexHeader:    a.config.OutputIndexHeader,
		Headers:        a.config.OutputHeaders,
		ExcludeHeaders: a.config.ExcludeOutputHeaders,
		Overwrite:      a.config.Overwrite,
	})
}

func (a *App) reportGaps(failed []int) {
	if len(failed) == 0 {
		return
	}
	fmt.Fprintf(a.outW, "completed with %d failed members: %v\n", len(failed), failed)
}
