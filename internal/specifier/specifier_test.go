package specifier

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mkdirs creates the named directories under a fresh temp root.
func mkdirs(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0o755))
	}
	return root
}

func TestResolveOrdersNumerically(t *testing.T) {
	// Lexicographic order would put 10 before 2.
	root := mkdirs(t, "workdir.10", "workdir.2", "workdir.1")

	members, err := Resolve(filepath.Join(root, "workdir.%d"), Options{})
	require.NoError(t, err)
	require.Len(t, members, 3)

	ids := []int{members[0].ID, members[1].ID, members[2].ID}
	assert.Equal(t, []int{1, 2, 10}, ids)
	for i, m := range members {
		assert.Equal(t, i, m.Index)
	}
}

func TestResolveLiteralGlobMetacharacters(t *testing.T) {
	// Brackets and stars in the literal template text name files, they are
	// not patterns. Only the placeholder may expand.
	root := mkdirs(t, "run[a].0", "run[a].1", "runa.2")

	members, err := Resolve(filepath.Join(root, "run[a].%d"), Options{})
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, 0, members[0].ID)
	assert.Equal(t, 1, members[1].ID)
}

func TestResolveIgnoresNonNumericMatches(t *testing.T) {
	root := mkdirs(t, "workdir.1", "workdir.backup", "workdir.2a")

	members, err := Resolve(filepath.Join(root, "workdir.%d"), Options{})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, 1, members[0].ID)
}

func TestResolveRangeFilter(t *testing.T) {
	root := mkdirs(t, "w.0", "w.5", "w.10", "w.15", "w.20")

	tests := []struct {
		name     string
		template string
		want     []int
	}{
		{"end exclusive", "w.%d[0:20]", []int{0, 5, 10, 15}},
		{"open start", "w.%d[:10]", []int{0, 5}},
		{"open end", "w.%d[10:]", []int{10, 15, 20}},
		{"step", "w.%d[0:21:10]", []int{0, 10, 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members, err := Resolve(filepath.Join(root, tt.template), Options{})
			require.NoError(t, err)
			var ids []int
			for _, m := range members {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestResolveExplicitInclude(t *testing.T) {
	root := mkdirs(t, "case.0", "case.1", "case.2")

	members, err := Resolve(filepath.Join(root, "case.%d"), Options{Include: []int{2, 0}})
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, 0, members[0].ID)
	assert.Equal(t, 2, members[1].ID)

	// Selecting an undiscovered ID is a specifier error.
	_, err = Resolve(filepath.Join(root, "case.%d"), Options{Include: []int{7}})
	var specErr *Error
	require.ErrorAs(t, err, &specErr)
}

func TestResolveTemplateErrors(t *testing.T) {
	root := mkdirs(t, "case.0")

	tests := []struct {
		name     string
		template string
	}{
		{"no placeholder", filepath.Join(root, "case.0")},
		{"two placeholders", filepath.Join(root, "case.%d.%d")},
		{"no matches", filepath.Join(root, "missing.%d")},
		{"bad filter", filepath.Join(root, "case.%d[1]")},
		{"bad step", filepath.Join(root, "case.%d[0:1:-2]")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.template, Options{})
			var specErr *Error
			require.Error(t, err)
			assert.True(t, errors.As(err, &specErr), "want *specifier.Error, got %T", err)
		})
	}
}

func TestResolveFiles(t *testing.T) {
	root := t.TempDir()
	memberDir := filepath.Join(root, "workdir.1")
	require.NoError(t, os.MkdirAll(memberDir, 0o755))
	for _, name := range []string{"out_0.npy", "out_100.npy", "out_20.npy", "state.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(memberDir, name), []byte("x"), 0o644))
	}

	// Templated: numeric order.
	files, err := ResolveFiles(memberDir, "out_%d.npy")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(memberDir, "out_0.npy"), files[0])
	assert.Equal(t, filepath.Join(memberDir, "out_20.npy"), files[1])
	assert.Equal(t, filepath.Join(memberDir, "out_100.npy"), files[2])

	// Literal file name.
	files, err = ResolveFiles(memberDir, "state.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(memberDir, "state.csv")}, files)

	_, err = ResolveFiles(memberDir, "absent.csv")
	var specErr *Error
	require.ErrorAs(t, err, &specErr)
}

func TestRoot(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "spinodal"), Root(filepath.Join("data", "spinodal", "workdir.%d")))
	assert.Equal(t, "data", Root(filepath.Join("data", "run_%d", "out")))
}
