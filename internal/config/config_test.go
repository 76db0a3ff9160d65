package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enspipe/enspipe/internal/ctxlog"
	"github.com/enspipe/enspipe/internal/plugin"
)

func testCtx() context.Context {
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type fakeOptions struct {
	Quality int    `hcl:"quality,optional"`
	Suffix  string `hcl:"suffix,optional"`
}

type fakePlugin struct {
	plugin.Template
	name string
	opts fakeOptions
}

func (f *fakePlugin) Name() string { return f.name }
func (f *fakePlugin) Options() any { return &f.opts }

type bareNamed struct {
	plugin.Template
	name string
}

func (b *bareNamed) Name() string { return b.name }

func writeOptions(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPluginOptionsFile(t *testing.T) {
	reg := plugin.NewRegistry()
	fake := &fakePlugin{name: "fake"}
	reg.Register(fake)

	path := writeOptions(t, t.TempDir(), "opts.hcl", `
plugin "fake" {
  quality = 80
  suffix  = "_phase"
}
`)
	require.NoError(t, LoadPluginOptions(testCtx(), path, reg))
	assert.Equal(t, 80, fake.opts.Quality)
	assert.Equal(t, "_phase", fake.opts.Suffix)
}

func TestLoadPluginOptionsDirectory(t *testing.T) {
	reg := plugin.NewRegistry()
	a := &fakePlugin{name: "alpha"}
	b := &fakePlugin{name: "beta"}
	reg.Register(a)
	reg.Register(b)

	dir := t.TempDir()
	writeOptions(t, dir, "alpha.hcl", "plugin \"alpha\" {\n  quality = 10\n}\n")
	writeOptions(t, dir, "beta.hcl", "plugin \"beta\" {\n  quality = 20\n}\n")

	require.NoError(t, LoadPluginOptions(testCtx(), dir, reg))
	assert.Equal(t, 10, a.opts.Quality)
	assert.Equal(t, 20, b.opts.Quality)
}

func TestLoadPluginOptionsErrors(t *testing.T) {
	reg := plugin.NewRegistry()
	reg.Register(&fakePlugin{name: "fake"})
	reg.Register(&bareNamed{name: "bare"})
	dir := t.TempDir()

	t.Run("unknown plugin", func(t *testing.T) {
		path := writeOptions(t, dir, "unknown.hcl", "plugin \"nope\" {}\n")
		err := LoadPluginOptions(testCtx(), path, reg)
		var cfgErr *Error
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("plugin without options", func(t *testing.T) {
		path := writeOptions(t, dir, "bare.hcl", "plugin \"bare\" {\n  x = 1\n}\n")
		err := LoadPluginOptions(testCtx(), path, reg)
		var cfgErr *Error
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, err.Error(), "takes no options")
	})

	t.Run("unknown option key", func(t *testing.T) {
		path := writeOptions(t, dir, "badkey.hcl", "plugin \"fake\" {\n  bogus = 1\n}\n")
		err := LoadPluginOptions(testCtx(), path, reg)
		var cfgErr *Error
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("missing path", func(t *testing.T) {
		err := LoadPluginOptions(testCtx(), filepath.Join(dir, "absent.hcl"), reg)
		var cfgErr *Error
		require.ErrorAs(t, err, &cfgErr)
	})
}

func TestValidatePluginOptions(t *testing.T) {
	reg := plugin.NewRegistry()
	reg.Register(&fakePlugin{name: "fake"})
	reg.Register(&bareNamed{name: "bare"})

	require.NoError(t, ValidatePluginOptions(testCtx(), reg, []string{"ensemble", "input-files", "over-write"}))
}

func TestValidatePluginOptionsCollision(t *testing.T) {
	reg := plugin.NewRegistry()
	reg.Register(&fakePlugin{name: "fake"})

	// "quality" is claimed by the core namespace here
	err := ValidatePluginOptions(testCtx(), reg, []string{"quality"})
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "collides")
}

type untaggedOptions struct {
	Loose int
}

type untaggedPlugin struct {
	plugin.Template
	opts untaggedOptions
}

func (u *untaggedPlugin) Name() string { return "untagged" }
func (u *untaggedPlugin) Options() any { return &u.opts }

func TestValidatePluginOptionsRequiresTags(t *testing.T) {
	reg := plugin.NewRegistry()
	reg.Register(&untaggedPlugin{})

	err := ValidatePluginOptions(testCtx(), reg, nil)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "no hcl tag")
}
