package reduce

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func rotation2(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(2, 2, []float64{c, s, -s, c})
}

func displacement(a, b *mat.Dense) float64 {
	var diff mat.Dense
	diff.Sub(a, b)
	return mat.Norm(&diff, 2)
}

func TestKabschRecoversRotation(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 0,
		0, 1,
		-1, 0,
		0, -1,
	})
	r0 := rotation2(math.Pi / 3)
	var y mat.Dense
	y.Mul(x, r0)

	rot, err := Kabsch{}.Fit(x, &y)
	require.NoError(t, err)

	var aligned mat.Dense
	aligned.Mul(x, rot)
	assert.InDelta(t, 0, displacement(&aligned, &y), 1e-10)
}

func TestKabschShapeMismatch(t *testing.T) {
	a := mat.NewDense(3, 2, nil)
	b := mat.NewDense(4, 2, nil)
	_, err := Kabsch{}.Fit(a, b)
	require.Error(t, err)
}

func TestAlignSeriesNeverIncreasesDisplacement(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const steps, n, d = 6, 10, 2

	frames := make([]*mat.Dense, steps)
	for t := range frames {
		data := make([]float64, n*d)
		for i := range data {
			data[i] = rng.NormFloat64()
		}
		frames[t] = mat.NewDense(n, d, data)
	}

	before := make([]float64, steps-1)
	for i := 0; i < steps-1; i++ {
		before[i] = displacement(frames[i], frames[i+1])
	}

	last := mat.DenseCopyOf(frames[steps-1])
	require.NoError(t, AlignSeries(frames, Kabsch{}))

	// The reference frame is untouched.
	assert.InDelta(t, 0, displacement(last, frames[steps-1]), 1e-12)

	for i := 0; i < steps-1; i++ {
		after := displacement(frames[i], frames[i+1])
		assert.LessOrEqual(t, after, before[i]+1e-9, "timestep %d", i)
	}
}

func TestAlignSeriesUndoesKnownRotations(t *testing.T) {
	base := mat.NewDense(4, 2, []float64{
		2, 0,
		0, 1,
		-2, 0,
		0, -1,
	})
	frames := []*mat.Dense{nil, nil, mat.DenseCopyOf(base)}
	for i, theta := range []float64{0.4, -1.1} {
		var f mat.Dense
		f.Mul(base, rotation2(theta))
		frames[i] = &f
	}

	require.NoError(t, AlignSeries(frames, Kabsch{}))
	for i := 0; i < 2; i++ {
		assert.InDelta(t, 0, displacement(frames[i], frames[2]), 1e-9, "timestep %d", i)
	}
}

func TestTruncate(t *testing.T) {
	frames := []*mat.Dense{mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})}
	Truncate(frames, 2)
	r, c := frames[0].Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 2.0, frames[0].At(0, 1))
}
