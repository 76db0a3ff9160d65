package ps

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/enspipe/enspipe/internal/ctxlog"
	"github.com/enspipe/enspipe/internal/field"
	"github.com/enspipe/enspipe/internal/plugin"
	"github.com/enspipe/enspipe/internal/table"
)

func testCtx() context.Context {
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// trajectory writes a steps x dims reduced array.
func trajectory(t *testing.T, dir, name string, rows, cols int, base float64) string {
	t.Helper()
	m := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Set(r, c, base+float64(r*cols+c))
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, field.WriteFile(field.FromMatrix(m), path, "npy", false))
	return path
}

func expandTable(t *testing.T, files []string) *table.Table {
	t.Helper()
	index := make([]int, len(files))
	labels := make([]string, len(files))
	for i := range files {
		index[i] = i
		labels[i] = "run"
	}
	tb := table.New(index)
	require.NoError(t, tb.AddColumn(table.Column{Header: "Label", Kind: table.String, Cells: labels}))
	require.NoError(t, tb.AddColumn(table.Column{
		Header: "Reduction File", Kind: table.FilePointer, Expand: true, Cells: files,
	}))
	return tb
}

func TestExpandMultiTimestep(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		trajectory(t, dir, "a.rd.npy", 2, 3, 0),
		trajectory(t, dir, "b.rd.npy", 2, 3, 100),
	}
	tb := expandTable(t, files)

	p := New()
	out, err := p.Expand(testCtx(), tb, plugin.ExpandOptions{
		Header:              "Reduction File",
		OriginalIndexHeader: "Original Index",
	})
	require.NoError(t, err)

	// two members, two timesteps each
	assert.Equal(t, 4, out.NumRows())

	d1, err := out.Column("Reduction File Dimension 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "3", "100", "103"}, d1.Cells)
	assert.Equal(t, table.XTag, d1.XY)

	d2, err := out.Column("Reduction File Dimension 2")
	require.NoError(t, err)
	assert.Equal(t, table.YTag, d2.XY)

	_, err = out.Column("Reduction File Dimension 3")
	require.Error(t, err, "default num_coords is 2")

	orig, err := out.Column("Original Index")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "0", "1", "1"}, orig.Cells)

	// pointer column survives by default
	ptr, err := out.Column("Reduction File")
	require.NoError(t, err)
	assert.Equal(t, files[0], ptr.Cells[0])
}

func TestExpandDropColumnAndClamp(t *testing.T) {
	dir := t.TempDir()
	files := []string{trajectory(t, dir, "a.rd.npy", 1, 2, 0)}
	tb := expandTable(t, files)

	p := New()
	p.opts.NumCoords = 5
	out, err := p.Expand(testCtx(), tb, plugin.ExpandOptions{
		Header:     "Reduction File",
		DropColumn: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.NumRows())

	_, err = out.Column("Reduction File")
	require.Error(t, err)

	// clamped to the 2 available dimensions
	_, err = out.Column("Reduction File Dimension 2")
	require.NoError(t, err)
	_, err = out.Column("Reduction File Dimension 3")
	require.Error(t, err)
}

func TestExpandValidation(t *testing.T) {
	dir := t.TempDir()
	thin := trajectory(t, dir, "thin.rd.npy", 3, 1, 0)
	tb := expandTable(t, []string{thin})

	p := New()
	_, err := p.Expand(testCtx(), tb, plugin.ExpandOptions{Header: "Reduction File"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2")

	p = New()
	p.opts.NumCoords = 1
	_, err = p.Expand(testCtx(), tb, plugin.ExpandOptions{Header: "Reduction File"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "num_coords")
}

func TestReadFileRejectsOtherFormats(t *testing.T) {
	p := New()
	_, err := p.ReadFile(testCtx(), "image.png", "")
	var fe *plugin.FormatError
	require.ErrorAs(t, err, &fe)
}
