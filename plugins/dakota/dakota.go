// Package dakota implements the Dakota study plugin: tabular result files
// become CSV tables with a work-directory pointer column, and Dakota
// parameter files feed table creation.
package dakota

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/enspipe/enspipe/internal/ctxlog"
	"github.com/enspipe/enspipe/internal/plugin"
	"github.com/enspipe/enspipe/internal/table"
)

// Plugin handles Dakota output formats.
type Plugin struct {
	plugin.Template
}

// New returns the plugin.
func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "dakota" }

// ConvertFiles converts a single Dakota tabular file (tabular.dat, columns
// separated by whitespace) into a CSV table. A work-directory pointer
// column, derived from the %eval_id column, is prepended so each row links
// back to its evaluation directory.
func (p *Plugin) ConvertFiles(ctx context.Context, files []string, opts plugin.ConvertOptions) ([]string, error) {
	if len(files) != 1 || !strings.HasSuffix(files[0], ".dat") {
		return nil, fmt.Errorf("dakota plugin: expected a single tabular .dat file, got %v", files)
	}
	if opts.OutputFormat != "csv" {
		return nil, fmt.Errorf("dakota plugin: tabular files convert to csv only, not %q", opts.OutputFormat)
	}

	headers, rows, err := readTabular(files[0])
	if err != nil {
		return nil, err
	}

	// Rows keep their file order; the table carries no index, matching the
	// tabular file itself.
	t := table.New(nil)
	evalCol := -1
	for j, h := range headers {
		if h == "%eval_id" {
			evalCol = j
			break
		}
	}
	if evalCol >= 0 {
		dir := filepath.Dir(files[0])
		cells := make([]string, len(rows))
		for i, row := range rows {
			cells[i] = filepath.Join(dir, "workdir."+row[evalCol])
		}
		err := t.AddColumn(table.Column{Header: "", Kind: table.FilePointer, Cells: cells})
		if err != nil {
			return nil, err
		}
	}
	for j, h := range headers {
		cells := make([]string, len(rows))
		for i, row := range rows {
			cells[i] = row[j]
		}
		if err := t.AddColumn(table.Column{Header: h, Cells: cells}); err != nil {
			return nil, err
		}
	}

	root := strings.TrimSuffix(filepath.Base(files[0]), ".dat")
	out := filepath.Join(opts.OutputDir, root+".csv")
	if err := table.WriteCSV(t, out, table.WriteOptions{Overwrite: opts.Overwrite}); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("converted dakota tabular file", "input", files[0], "output", out, "rows", len(rows))
	return []string{out}, nil
}

// ReadInputDeck parses Dakota parameter files ("<value> <label>" lines,
// aprepro or standard format) into label/value metadata. Later files
// override earlier labels.
func (p *Plugin) ReadInputDeck(_ context.Context, files []string) (map[string]string, error) {
	deck := make(map[string]string)
	for _, path := range files {
		if err := readParams(path, deck); err != nil {
			return nil, err
		}
	}
	if len(deck) == 0 {
		return nil, fmt.Errorf("dakota plugin: no parameters found in %v", files)
	}
	return deck, nil
}

func readParams(path string, deck map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		// Aprepro format brackets the pair: { label = value }
		if fields[0] == "{" && len(fields) >= 5 && fields[2] == "=" {
			deck[fields[1]] = fields[3]
			continue
		}
		value, label := fields[0], fields[1]
		// Counter lines such as "7 variables" describe the file, not a
		// parameter.
		switch label {
		case "variables", "functions", "derivative_variables", "analysis_components", "eval_id":
			continue
		}
		deck[label] = value
	}
	return sc.Err()
}

func readTabular(path string) (headers []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if headers == nil {
			headers = fields
			continue
		}
		if len(fields) != len(headers) {
			return nil, nil, fmt.Errorf("dakota plugin: %s row %d has %d fields, want %d",
				path, len(rows)+2, len(fields), len(headers))
		}
		rows = append(rows, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if headers == nil {
		return nil, nil, fmt.Errorf("dakota plugin: %s is empty", path)
	}
	return headers, rows, nil
}
