// Package plugin defines the capability contract implemented per simulation
// or visualization format, and the registry the engines select plugins from
// by name. A plugin is a stateless value; its options are decoded once at
// configure time and treated as read-only afterwards, so a single instance
// is safe to borrow from any number of workers.
package plugin

import (
	"context"
	"fmt"

	"github.com/enspipe/enspipe/internal/field"
	"github.com/enspipe/enspipe/internal/table"
)

// FormatError reports a file whose format the plugin does not recognize or
// could not decode.
type FormatError struct {
	Path   string
	Format string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plugin: unsupported format %q for %s: %v", e.Format, e.Path, e.Err)
	}
	return fmt.Sprintf("plugin: unsupported format %q for %s", e.Format, e.Path)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ExpandOptions configure Plugin.Expand.
type ExpandOptions struct {
	// Header names the column whose cells reference composite artifacts.
	Header string
	// OutputDir receives side-file artifacts the expansion produces.
	OutputDir string
	// OutputFile names the primary artifact for plugins that write one.
	OutputFile string
	// OriginalIndexHeader, when non-empty, records the source member index
	// per expanded row.
	OriginalIndexHeader string
	// DropColumn removes the expanded column from the result.
	DropColumn bool
	Overwrite  bool
}

// ConvertOptions configure Plugin.ConvertFiles.
type ConvertOptions struct {
	// OutputDir receives the converted artifacts.
	OutputDir string
	// InputFormat and OutputFormat are extension-style format names ("npy",
	// "png", "avi", ...). Empty input format means infer per file.
	InputFormat  string
	OutputFormat string
	Overwrite    bool
}

// Plugin is the per-format capability bundle the engines call into. A
// concrete plugin usually embeds Template and overrides only the hooks its
// format needs.
type Plugin interface {
	// Name is the registry key, unique across the build.
	Name() string

	// Options returns a pointer to the plugin's hcl-tagged option struct,
	// or nil when the plugin takes no options. The coordinator decodes the
	// option file into it and validates its keys against the core
	// configuration namespace before any engine runs.
	Options() any

	// ReadFile loads one artifact as a field array. An empty format is
	// inferred from the extension. Unknown formats return *FormatError.
	ReadFile(ctx context.Context, path, format string) (*field.Array, error)

	// WriteFile writes a field array, honoring the overwrite policy.
	WriteFile(ctx context.Context, a *field.Array, path, format string, overwrite bool) error

	// ReadInputDeck parses a member's input deck files into key/value
	// metadata for table creation. Plugins without a deck format return an
	// error.
	ReadInputDeck(ctx context.Context, files []string) (map[string]string, error)

	// ConvertFiles converts one member's ordered input files and returns
	// the paths of the artifacts it wrote.
	ConvertFiles(ctx context.Context, files []string, opts ConvertOptions) ([]string, error)

	// Expand replaces a column of composite-artifact references with
	// plugin-defined derived columns and side files.
	Expand(ctx context.Context, t *table.Table, opts ExpandOptions) (*table.Table, error)
}
