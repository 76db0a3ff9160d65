// Package field holds the dense numeric arrays read from simulation outputs:
// scalar rows, vectors, images, and image sequences. Arrays are row-major.
package field

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Array is a dense row-major numeric array of arbitrary rank.
type Array struct {
	Shape []int
	Data  []float64
}

// New allocates a zeroed array with the given shape.
func New(shape ...int) *Array {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			panic(fmt.Sprintf("field: non-positive dimension %d", d))
		}
		n *= d
	}
	return &Array{Shape: append([]int(nil), shape...), Data: make([]float64, n)}
}

// FromMatrix copies a gonum matrix into a rank-2 array.
func FromMatrix(m mat.Matrix) *Array {
	r, c := m.Dims()
	a := New(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			a.Data[i*c+j] = m.At(i, j)
		}
	}
	return a
}

// Rank returns the number of dimensions.
func (a *Array) Rank() int { return len(a.Shape) }

// Len returns the total element count.
func (a *Array) Len() int { return len(a.Data) }

// Matrix views a rank-2 array as a gonum dense matrix sharing the backing
// data. Rank-1 arrays are viewed as a single row.
func (a *Array) Matrix() (*mat.Dense, error) {
	switch a.Rank() {
	case 1:
		return mat.NewDense(1, a.Shape[0], a.Data), nil
	case 2:
		return mat.NewDense(a.Shape[0], a.Shape[1], a.Data), nil
	default:
		return nil, fmt.Errorf("field: cannot view rank-%d array as matrix", a.Rank())
	}
}

// Frames slices a rank-3 array along its leading axis into rank-2 views
// sharing the backing data. A rank-2 array yields itself as a single frame.
func (a *Array) Frames() ([]*Array, error) {
	switch a.Rank() {
	case 2:
		return []*Array{a}, nil
	case 3:
		n, rows, cols := a.Shape[0], a.Shape[1], a.Shape[2]
		frames := make([]*Array, n)
		size := rows * cols
		for i := 0; i < n; i++ {
			frames[i] = &Array{
				Shape: []int{rows, cols},
				Data:  a.Data[i*size : (i+1)*size],
			}
		}
		return frames, nil
	default:
		return nil, fmt.Errorf("field: cannot slice rank-%d array into frames", a.Rank())
	}
}

// Flatten returns the backing data as a single vector. The slice is shared,
// not copied.
func (a *Array) Flatten() []float64 { return a.Data }

// MinMax returns the smallest and largest element.
func (a *Array) MinMax() (min, max float64) {
	min, max = a.Data[0], a.Data[0]
	for _, v := range a.Data[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	out := &Array{
		Shape: append([]int(nil), a.Shape...),
		Data:  append([]float64(nil), a.Data...),
	}
	return out
}
