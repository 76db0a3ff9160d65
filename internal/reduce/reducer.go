// Package reduce implements the dimension-reduction and time-alignment
// engine: per-member fields are stacked into a matrix, projected into a
// low-dimensional embedding, and optionally rotated into a consistent frame
// across timesteps.
package reduce

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/enspipe/enspipe/internal/ctxlog"
)

// Reducer projects the rows of a matrix into dim dimensions.
type Reducer interface {
	FitTransform(ctx context.Context, m *mat.Dense, dim int) (*mat.Dense, error)
}

// Factory builds a reducer. Algorithms without an inherent seed policy
// ignore the seed.
type Factory func(seed int64) Reducer

var factories = map[string]Factory{}

// Register adds an algorithm under name. Duplicate registration is a
// programming error and panics.
func Register(name string, f Factory) {
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("reduce: duplicate algorithm %q", name))
	}
	factories[name] = f
}

// NewReducer builds the named algorithm.
func NewReducer(name string, seed int64) (Reducer, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("reduce: unknown algorithm %q (have %v)", name, Algorithms())
	}
	return f(seed), nil
}

// Algorithms returns the registered algorithm names in sorted order.
func Algorithms() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("pca", func(int64) Reducer { return pca{} })
	Register("cmds", func(int64) Reducer { return cmds{} })
}

// pca projects onto the top principal components of the mean-centered data.
type pca struct{}

func (pca) FitTransform(ctx context.Context, m *mat.Dense, dim int) (*mat.Dense, error) {
	n, d := m.Dims()
	if dim < 1 || dim > d {
		return nil, fmt.Errorf("reduce: pca dimension %d out of range for %d features", dim, d)
	}

	centered := center(m)
	var pc stat.PC
	if !pc.PrincipalComponents(centered, nil) {
		return nil, fmt.Errorf("reduce: pca decomposition failed for %dx%d matrix", n, d)
	}
	var vec mat.Dense
	pc.VectorsTo(&vec)
	_, k := vec.Dims()
	if dim > k {
		return nil, fmt.Errorf("reduce: pca yields only %d components, %d requested", k, dim)
	}

	vars := pc.VarsTo(nil)
	total := 0.0
	for _, v := range vars {
		total += v
	}
	explained := 0.0
	if total > 0 {
		for _, v := range vars[:dim] {
			explained += v / total
		}
	}
	ctxlog.FromContext(ctx).Debug("pca fit", "components", dim, "explained_variance", explained)

	var out mat.Dense
	out.Mul(centered, vec.Slice(0, d, 0, dim))
	return &out, nil
}

// cmds is classical multidimensional scaling on Euclidean distances: double
// centering of the squared-distance matrix followed by a symmetric
// eigendecomposition.
type cmds struct{}

func (cmds) FitTransform(ctx context.Context, m *mat.Dense, dim int) (*mat.Dense, error) {
	n, _ := m.Dims()
	if dim < 1 || dim > n {
		return nil, fmt.Errorf("reduce: cmds dimension %d out of range for %d samples", dim, n)
	}

	b := gramFromDistances(m)
	var eig mat.EigenSym
	if !eig.Factorize(b, true) {
		return nil, fmt.Errorf("reduce: cmds eigendecomposition failed for %d samples", n)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Eigenvalues come back ascending; the embedding uses the largest.
	out := mat.NewDense(n, dim, nil)
	for j := 0; j < dim; j++ {
		col := n - 1 - j
		scale := 0.0
		if vals[col] > 0 {
			scale = math.Sqrt(vals[col])
		}
		for i := 0; i < n; i++ {
			out.Set(i, j, vecs.At(i, col)*scale)
		}
	}
	ctxlog.FromContext(ctx).Debug("cmds fit", "components", dim, "samples", n)
	return out, nil
}

// center returns a copy of m with column means subtracted.
func center(m *mat.Dense) *mat.Dense {
	n, d := m.Dims()
	out := mat.NewDense(n, d, nil)
	for j := 0; j < d; j++ {
		mean := 0.0
		for i := 0; i < n; i++ {
			mean += m.At(i, j)
		}
		mean /= float64(n)
		for i := 0; i < n; i++ {
			out.Set(i, j, m.At(i, j)-mean)
		}
	}
	return out
}

// gramFromDistances double-centers the squared Euclidean distance matrix of
// the rows of m.
func gramFromDistances(m *mat.Dense) *mat.SymDense {
	n, d := m.Dims()
	sq := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := 0.0
			for k := 0; k < d; k++ {
				diff := m.At(i, k) - m.At(j, k)
				s += diff * diff
			}
			sq[i*n+j] = s
			sq[j*n+i] = s
		}
	}

	rowMean := make([]float64, n)
	grand := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			rowMean[i] += sq[i*n+j]
		}
		grand += rowMean[i]
		rowMean[i] /= float64(n)
	}
	grand /= float64(n * n)

	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			b.SetSym(i, j, -0.5*(sq[i*n+j]-rowMean[i]-rowMean[j]+grand))
		}
	}
	return b
}
