package reduce

import (
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/enspipe/enspipe/internal/ctxlog"
)

func testCtx() context.Context {
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func pairwise(m *mat.Dense) []float64 {
	n, d := m.Dims()
	var out []float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := 0.0
			for k := 0; k < d; k++ {
				diff := m.At(i, k) - m.At(j, k)
				s += diff * diff
			}
			out = append(out, math.Sqrt(s))
		}
	}
	return out
}

func TestNewReducer(t *testing.T) {
	for _, name := range []string{"pca", "cmds"} {
		r, err := NewReducer(name, 0)
		require.NoError(t, err)
		assert.NotNil(t, r)
	}
	_, err := NewReducer("tsne", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown algorithm")

	assert.Equal(t, []string{"cmds", "pca"}, Algorithms())
	assert.Panics(t, func() { Register("pca", func(int64) Reducer { return pca{} }) })
}

func TestPCARecoversCollinearStructure(t *testing.T) {
	// Points on a line in 4-D space: one component carries all variance.
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, float64(i))
		}
	}

	r, err := NewReducer("pca", 0)
	require.NoError(t, err)
	out, err := r.FitTransform(testCtx(), m, 1)
	require.NoError(t, err)

	n, d := out.Dims()
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, d)

	// Projections stay evenly spaced with step 2 (distance between
	// consecutive 4-D points).
	step := out.At(1, 0) - out.At(0, 0)
	assert.InDelta(t, 2.0, math.Abs(step), 1e-9)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, step, out.At(i+1, 0)-out.At(i, 0), 1e-9)
	}
}

func TestPCADimensionBounds(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{0, 0, 1, 0, 0, 1})
	r, err := NewReducer("pca", 0)
	require.NoError(t, err)
	_, err = r.FitTransform(testCtx(), m, 3)
	require.Error(t, err)
	_, err = r.FitTransform(testCtx(), m, 0)
	require.Error(t, err)
}

func TestCMDSPreservesEuclideanDistances(t *testing.T) {
	// Planar points embedded exactly when the target dimension matches.
	m := mat.NewDense(4, 2, []float64{
		0, 0,
		3, 0,
		0, 4,
		3, 4,
	})
	r, err := NewReducer("cmds", 0)
	require.NoError(t, err)
	out, err := r.FitTransform(testCtx(), m, 2)
	require.NoError(t, err)

	want := pairwise(m)
	got := pairwise(out)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-8)
	}
}

func TestCMDSDimensionBounds(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{0, 0, 0, 1, 1, 1})
	r, err := NewReducer("cmds", 0)
	require.NoError(t, err)
	_, err = r.FitTransform(testCtx(), m, 3)
	require.Error(t, err)
}
