package plugin

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enspipe/enspipe/internal/ctxlog"
	"github.com/enspipe/enspipe/internal/field"
)

func testCtx() context.Context {
	logger := slog.New(slog.NewTextHandler(testWriter{}, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestTemplateReadFileInfersFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vals.csv")
	a := field.New(3)
	copy(a.Data, []float64{1, 2, 3})
	require.NoError(t, field.WriteFile(a, path, "csv", false))

	var tpl Template
	got, err := tpl.ReadFile(testCtx(), path, "")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got.Data)
}

func TestTemplateReadFileUnknownFormat(t *testing.T) {
	var tpl Template
	_, err := tpl.ReadFile(testCtx(), "deck.inp", "")
	require.Error(t, err)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "inp", fe.Format)
}

func TestTemplateReadFileWrapsIOError(t *testing.T) {
	var tpl Template
	_, err := tpl.ReadFile(testCtx(), "does-not-exist.npy", "")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestTemplateConvertFiles(t *testing.T) {
	dir := t.TempDir()
	a := field.New(2)
	copy(a.Data, []float64{4, 5})
	src := filepath.Join(dir, "frame.npy")
	require.NoError(t, field.WriteFile(a, src, "npy", false))

	outDir := filepath.Join(dir, "out")
	var tpl Template
	outputs, err := tpl.ConvertFiles(testCtx(), []string{src}, ConvertOptions{
		OutputDir:    outDir,
		OutputFormat: "csv",
	})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, filepath.Join(outDir, "frame.csv"), outputs[0])

	got, err := field.ReadFile(outputs[0], "csv")
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5}, got.Data)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(named{name: "alpha"})
	r.Register(named{name: "beta"})

	p, err := r.Lookup("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", p.Name())

	_, err = r.Lookup("gamma")
	require.Error(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, r.Names())

	assert.Panics(t, func() { r.Register(named{name: "alpha"}) })
}

// named only exercises registry bookkeeping.
type named struct {
	Template
	name string
}

func (n named) Name() string { return n.name }
