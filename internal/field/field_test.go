package field

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enspipe/enspipe/internal/fsutil"
)

func TestMatrixAndFrames(t *testing.T) {
	a := New(2, 2, 3)
	for i := range a.Data {
		a.Data[i] = float64(i)
	}

	frames, err := a.Frames()
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []int{2, 3}, frames[0].Shape)
	assert.Equal(t, 6.0, frames[1].Data[0])

	m, err := frames[1].Matrix()
	require.NoError(t, err)
	assert.Equal(t, 8.0, m.At(0, 2))

	_, err = a.Matrix()
	require.Error(t, err)
}

func TestNPYRoundTrip(t *testing.T) {
	a := New(3, 4)
	for i := range a.Data {
		a.Data[i] = float64(i) * 0.5
	}

	var buf bytes.Buffer
	require.NoError(t, WriteNPY(&buf, a))

	got, err := ReadNPY(&buf)
	require.NoError(t, err)
	assert.Equal(t, a.Shape, got.Shape)
	assert.InDeltaSlice(t, a.Data, got.Data, 1e-12)
}

func TestReadNPYEmptyShape(t *testing.T) {
	// numpy happily writes zero-length arrays; reading one must be an
	// ordinary per-file error, not a panic.
	var buf bytes.Buffer
	require.NoError(t, npyio.Write(&buf, []float64{}))

	_, err := ReadNPY(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty shape")
}

func TestNPZRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.npz")
	a := New(2, 2)
	copy(a.Data, []float64{1, 2, 3, 4})

	require.NoError(t, WriteFile(a, path, "", false))

	got, err := ReadFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, got.Shape)
	assert.InDeltaSlice(t, a.Data, got.Data, 1e-12)
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "row.csv")
	a := New(2, 3)
	copy(a.Data, []float64{1, 2, 3, 4, 5, 6})

	require.NoError(t, WriteFile(a, path, "", false))

	got, err := ReadFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, got.Shape)
	assert.InDeltaSlice(t, a.Data, got.Data, 1e-9)
}

func TestReadImageGrayscale(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	img.SetGray(0, 0, color.Gray{Y: 0})
	img.SetGray(2, 1, color.Gray{Y: 255})

	path := filepath.Join(t.TempDir(), "frame.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	a, err := ReadFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, a.Shape)
	assert.InDelta(t, 0, a.Data[0], 1.0)
	assert.InDelta(t, 255, a.Data[5], 1.0)
}

func TestWriteFileHonorsOverwritePolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.npy")
	a := New(2)

	require.NoError(t, WriteFile(a, path, "", false))

	err := WriteFile(a, path, "", false)
	var existsErr *fsutil.OutputExistsError
	require.ErrorAs(t, err, &existsErr)

	require.NoError(t, WriteFile(a, path, "", true))
}

func TestReadFileUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.vtk")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	_, err := ReadFile(path, "")
	require.Error(t, err)
}
