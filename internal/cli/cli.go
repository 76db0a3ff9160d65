// Package cli parses the enspipe command line into an app.Config. Each
// subcommand carries its own flag set; shared flags are repeated on every
// set so "enspipe reduce --help" shows everything reduce accepts.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/enspipe/enspipe/internal/app"
)

// ExitError is a parse or validation failure carrying the process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

const rootUsage = `
enspipe - ensemble simulation ingestion and reduction pipeline.

Usage:
  enspipe <command> [options] [args]

Commands:
  convert   Convert each ensemble member's artifacts to another format.
  reduce    Reduce each member's fields to a low-dimensional embedding.
  table     Join, concatenate, expand, or build ensemble CSV tables.

Run 'enspipe <command> --help' for the command's options.
`

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating the program should exit cleanly (help requested), or
// an ExitError describing a usage problem.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	if len(args) == 0 {
		fmt.Fprint(output, rootUsage)
		return nil, true, nil
	}

	command := args[0]
	switch command {
	case "convert", "reduce", "table":
	case "-h", "--help", "help":
		fmt.Fprint(output, rootUsage)
		return nil, true, nil
	default:
		return nil, false, usageError("unknown command %q, expected convert, reduce, or table", command)
	}

	flagSet := flag.NewFlagSet("enspipe "+command, flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprintf(output, "\nUsage:\n  enspipe %s [options]", command)
		if command == "table" {
			fmt.Fprint(output, " [CSV_FILE ...]")
		}
		fmt.Fprint(output, "\n\nOptions:\n")
		flagSet.PrintDefaults()
	}

	cfg := app.Config{Command: command}

	// Flags common to every subcommand.
	flagSet.StringVar(&cfg.Ensemble, "ensemble", "", "Ensemble directory specifier with one %d placeholder, e.g. 'runs/workdir.%d'.")
	flagSet.StringVar(&cfg.InputFiles, "input-files", "", "Per-member input file template, resolved inside each member directory.")
	flagSet.StringVar(&cfg.InputFormat, "input-format", "", "Input file format. Inferred from the extension when empty.")
	flagSet.StringVar(&cfg.OutputDir, "output-dir", "", "Directory receiving per-member output artifacts.")
	flagSet.StringVar(&cfg.OutputFile, "output-file", "", "Output file: the output CSV for convert and table, the per-member artifact name for reduce.")
	flagSet.BoolVar(&cfg.Overwrite, "over-write", false, "Overwrite existing output files.")
	flagSet.StringVar(&cfg.PluginName, "plugin", "convert", "Plugin handling file formats for this run.")
	flagSet.StringVar(&cfg.PluginConfig, "plugin-config", "", "HCL file or directory with plugin option blocks.")
	flagSet.IntVar(&cfg.Workers, "workers", 4, "Number of ensemble members processed concurrently.")
	flagSet.BoolVar(&cfg.Strict, "strict", false, "Abort on the first member failure instead of recording a gap.")
	flagSet.StringVar(&cfg.LogLevel, "log-level", "info", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flagSet.StringVar(&cfg.LogFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")

	var uriCols, originNames, outHeaders, exHeaders string
	switch command {
	case "convert":
		flagSet.StringVar(&cfg.OutputFormat, "output-format", "", "Format the input files are converted to.")
		flagSet.StringVar(&cfg.CSVHeader, "csv-header", "", "Header of the file-pointer column in the output table.")
	case "reduce":
		flagSet.StringVar(&cfg.Algorithm, "algorithm", "pca", "Reduction algorithm: 'pca' or 'cmds'.")
		flagSet.IntVar(&cfg.NumDim, "num-dim", 2, "Target embedding dimension.")
		flagSet.IntVar(&cfg.TimeAlign, "time-align", 0, "Enable time alignment, reducing each timestep to this many dimensions before rotation. 0 disables.")
		flagSet.BoolVar(&cfg.AutoCorrelate, "auto-correlate", false, "Replace each field with its periodic autocorrelation. Requires --binary.")
		flagSet.BoolVar(&cfg.Binary, "binary", false, "Clip fields to {0, 1} before reduction.")
		flagSet.BoolVar(&cfg.Scale, "scale", false, "Rescale each field into [-0.5, 0.5].")
		flagSet.StringVar(&cfg.FieldVar, "field-var", "", "Variable name selected inside npz inputs.")
		flagSet.StringVar(&cfg.XYOut, "xy-out", "", "Path of an XY coordinate CSV built from the first two embedding dimensions.")
		flagSet.StringVar(&cfg.XYHeader, "xy-header", "", "Header stem of the XY coordinate columns.")
		flagSet.StringVar(&cfg.CSVOut, "csv-out", "", "Path of a file-pointer CSV referencing the per-member artifacts.")
		flagSet.StringVar(&cfg.CSVHeader, "csv-header", "", "Header of the file-pointer column.")
		flagSet.Int64Var(&cfg.Seed, "seed", 0, "Random seed for algorithms without an inherent determinism policy.")
	case "table":
		flagSet.BoolVar(&cfg.Join, "join", false, "Merge the input CSV files column-wise.")
		flagSet.BoolVar(&cfg.Concat, "concat", false, "Concatenate the input CSV files row-wise.")
		flagSet.BoolVar(&cfg.Expand, "expand", false, "Expand a file-pointer column through the plugin.")
		flagSet.BoolVar(&cfg.ConvertURIs, "convert-uris", false, "Rewrite file-pointer columns as URIs under --uri-root.")
		flagSet.BoolVar(&cfg.Create, "create", false, "Build a metadata table from per-member input decks.")
		flagSet.BoolVar(&cfg.IgnoreIndex, "ignore-index", false, "Join row-by-row positionally instead of aligning on member index.")
		flagSet.BoolVar(&cfg.FillMissing, "fill-missing", false, "Join keeps the union of member indices, filling absent cells with --missing-value.")
		flagSet.StringVar(&cfg.MissingValue, "missing-value", "", "Cell value for members absent from a joined input.")
		flagSet.BoolVar(&cfg.NoIndex, "no-index", false, "Treat the first CSV column as data, not as the member index.")
		flagSet.StringVar(&cfg.ExpandHeader, "expand-header", "", "Header of the column to expand.")
		flagSet.BoolVar(&cfg.DropExpandCol, "drop-expand-col", false, "Remove the expanded column from the result.")
		flagSet.StringVar(&uriCols, "uri-cols", "", "Comma-separated headers of file-pointer columns to rewrite.")
		flagSet.StringVar(&cfg.URIRoot, "uri-root", "", "URI prefix replacing the common directory of each rewritten column.")
		flagSet.StringVar(&cfg.OriginHeader, "add-origin-col", "", "Header of a column recording which input each row came from.")
		flagSet.StringVar(&originNames, "origin-col-names", "", "Comma-separated labels for the inputs, used for origin and collision naming.")
	}

	flagSet.StringVar(&outHeaders, "output-headers", "", "Comma-separated headers selecting the output columns, in order.")
	flagSet.StringVar(&exHeaders, "exclude-output-headers", "", "Comma-separated headers excluded from the output.")
	flagSet.StringVar(&cfg.OutputIndexHeader, "output-index-header", "", "Header of the index column in the output table.")
	flagSet.BoolVar(&cfg.OutputNoIndex, "output-no-index", false, "Omit the index column from the output table.")

	if err := flagSet.Parse(args[1:]); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, usageError("%v", err)
	}

	cfg.TableInputs = flagSet.Args()
	cfg.URIColumns = splitList(uriCols)
	cfg.OriginNames = splitList(originNames)
	cfg.OutputHeaders = splitList(outHeaders)
	cfg.ExcludeOutputHeaders = splitList(exHeaders)

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, false, usageError("invalid log-format: must be 'text' or 'json'")
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, usageError("%v", err)
	}
	return config, false, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
