package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/enspipe/enspipe/internal/ctxlog"
	"github.com/enspipe/enspipe/internal/field"
	"github.com/enspipe/enspipe/internal/table"
)

// Template supplies the default behavior of every hook. Concrete plugins
// embed it and override what their format needs; unoverridden hooks fall
// through to the generic field readers and writers here. Delegation is a
// plain method call, the template carries no state.
type Template struct{}

var fieldFormats = map[string]struct{}{
	"npy": {}, "npz": {}, "png": {}, "jpg": {}, "csv": {},
}

// ReadFile reads any generic field format. The format is inferred from the
// extension when empty.
func (Template) ReadFile(_ context.Context, path, format string) (*field.Array, error) {
	if format == "" {
		format = field.Infer(path)
		if format == "" {
			// keep the extension in the error for unrecognized files
			format = strings.TrimPrefix(filepath.Ext(path), ".")
		}
	}
	format = strings.ToLower(format)
	if format == "jpeg" {
		format = "jpg"
	}
	if _, ok := fieldFormats[format]; !ok {
		return nil, &FormatError{Path: path, Format: format}
	}
	a, err := field.ReadFile(path, format)
	if err != nil {
		return nil, &FormatError{Path: path, Format: format, Err: err}
	}
	return a, nil
}

// WriteFile writes any generic field format.
func (Template) WriteFile(_ context.Context, a *field.Array, path, format string, overwrite bool) error {
	if format == "" {
		format = field.Infer(path)
	}
	return field.WriteFile(a, path, format, overwrite)
}

// ReadInputDeck is unsupported by the base template.
func (Template) ReadInputDeck(_ context.Context, files []string) (map[string]string, error) {
	return nil, fmt.Errorf("plugin: no input deck reader for %v", files)
}

// ConvertFiles converts each file independently, keeping its base name and
// swapping the extension for the output format.
func (tp Template) ConvertFiles(ctx context.Context, files []string, opts ConvertOptions) ([]string, error) {
	log := ctxlog.FromContext(ctx)
	out := make([]string, 0, len(files))
	for _, f := range files {
		a, err := tp.ReadFile(ctx, f, opts.InputFormat)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f)) + "." + opts.OutputFormat
		dst := filepath.Join(opts.OutputDir, name)
		if err := tp.WriteFile(ctx, a, dst, opts.OutputFormat, opts.Overwrite); err != nil {
			return nil, err
		}
		log.Debug("converted file", "source", f, "output", dst)
		out = append(out, dst)
	}
	return out, nil
}

// Expand is unsupported by the base template.
func (Template) Expand(_ context.Context, _ *table.Table, opts ExpandOptions) (*table.Table, error) {
	return nil, fmt.Errorf("plugin: no expansion defined for column %q", opts.Header)
}

// Options reports no plugin options.
func (Template) Options() any { return nil }
