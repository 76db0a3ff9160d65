package reduce

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/enspipe/enspipe/internal/field"
)

// Binary clips an array in place: nonzero elements become one.
func Binary(a *field.Array) {
	for i, v := range a.Data {
		if v != 0 {
			a.Data[i] = 1
		}
	}
}

// Scale rescales an array in place into [-0.5, 0.5] over its global range.
// A constant array becomes all zeros.
func Scale(a *field.Array) {
	lo, hi := a.MinMax()
	span := hi - lo
	if span == 0 {
		for i := range a.Data {
			a.Data[i] = 0
		}
		return
	}
	for i, v := range a.Data {
		a.Data[i] = (v-lo)/span - 0.5
	}
}

// Autocorrelate replaces an array with its periodic autocorrelation,
// computed through the FFT. Rank 1 arrays correlate along their only axis,
// rank 2 arrays along both. The same transform must be applied to every
// member so the stacked features stay comparable.
func Autocorrelate(a *field.Array) (*field.Array, error) {
	switch a.Rank() {
	case 1:
		out := field.New(a.Shape...)
		autocorr1d(out.Data, a.Data)
		return out, nil
	case 2:
		rows, cols := a.Shape[0], a.Shape[1]
		work := make([]complex128, rows*cols)
		for i, v := range a.Data {
			work[i] = complex(v, 0)
		}

		rowFFT := fourier.NewCmplxFFT(cols)
		colFFT := fourier.NewCmplxFFT(rows)
		fft2(work, rows, cols, rowFFT, colFFT, false)
		for i, c := range work {
			re, im := real(c), imag(c)
			work[i] = complex(re*re+im*im, 0)
		}
		fft2(work, rows, cols, rowFFT, colFFT, true)

		out := field.New(rows, cols)
		norm := float64(rows * cols)
		for i, c := range work {
			out.Data[i] = real(c) / norm
		}
		return out, nil
	default:
		return nil, fmt.Errorf("reduce: autocorrelation needs rank 1 or 2, got rank %d", a.Rank())
	}
}

func autocorr1d(dst, src []float64) {
	n := len(src)
	fft := fourier.NewCmplxFFT(n)
	work := make([]complex128, n)
	for i, v := range src {
		work[i] = complex(v, 0)
	}
	fft.Coefficients(work, work)
	for i, c := range work {
		re, im := real(c), imag(c)
		work[i] = complex(re*re+im*im, 0)
	}
	fft.Sequence(work, work)
	// Sequence leaves the inverse unnormalized.
	for i, c := range work {
		dst[i] = real(c) / float64(n)
	}
}

// fft2 applies a forward or inverse FFT along both axes of a row-major
// rows x cols buffer, in place. The inverse is left unnormalized.
func fft2(buf []complex128, rows, cols int, rowFFT, colFFT *fourier.CmplxFFT, inverse bool) {
	apply := func(fft *fourier.CmplxFFT, seq []complex128) {
		if inverse {
			fft.Sequence(seq, seq)
		} else {
			fft.Coefficients(seq, seq)
		}
	}
	for r := 0; r < rows; r++ {
		apply(rowFFT, buf[r*cols:(r+1)*cols])
	}
	col := make([]complex128, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			col[r] = buf[r*cols+c]
		}
		apply(colFFT, col)
		for r := 0; r < rows; r++ {
			buf[r*cols+c] = col[r]
		}
	}
}
