package reduce

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Aligner fits a rotation that carries the rows of moving onto the rows of
// target. Both are n x d with matching dims; the result R is d x d and is
// applied as moving * R.
type Aligner interface {
	Fit(moving, target *mat.Dense) (*mat.Dense, error)
}

// Kabsch computes the least-squares rotation between two point sets via the
// SVD of their cross-covariance.
type Kabsch struct{}

// Fit returns R = U * Vt where U, V come from the SVD of movingT * target.
func (Kabsch) Fit(moving, target *mat.Dense) (*mat.Dense, error) {
	mr, mc := moving.Dims()
	tr, tc := target.Dims()
	if mr != tr || mc != tc {
		return nil, fmt.Errorf("reduce: alignment shapes differ, %dx%d vs %dx%d", mr, mc, tr, tc)
	}

	var cross mat.Dense
	cross.Mul(moving.T(), target)

	var svd mat.SVD
	if !svd.Factorize(&cross, mat.SVDThin) {
		return nil, fmt.Errorf("reduce: svd failed during alignment")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var rot mat.Dense
	rot.Mul(&u, v.T())
	return &rot, nil
}

// AlignSeries rotates a sequence of per-timestep embeddings into a mutually
// consistent frame. The last timestep is the reference and keeps the
// identity; earlier timesteps are each fit against their already-aligned
// successor, walking backwards. Rotation never changes pairwise distances
// within a timestep, and the fit cannot increase the displacement between a
// timestep and its successor.
func AlignSeries(frames []*mat.Dense, a Aligner) error {
	for i := len(frames) - 2; i >= 0; i-- {
		rot, err := a.Fit(frames[i], frames[i+1])
		if err != nil {
			return fmt.Errorf("aligning timestep %d: %w", i, err)
		}
		var rotated mat.Dense
		rotated.Mul(frames[i], rot)
		frames[i] = &rotated
	}
	return nil
}

// Truncate drops trailing embedding columns, reducing each frame from its
// alignment dimension to dim.
func Truncate(frames []*mat.Dense, dim int) {
	for i, f := range frames {
		n, d := f.Dims()
		if dim < d {
			frames[i] = mat.DenseCopyOf(f.Slice(0, n, 0, dim))
		}
	}
}
