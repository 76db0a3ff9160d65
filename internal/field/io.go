package field

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/enspipe/enspipe/internal/fsutil"
)

// Infer maps a file name to the format identifier used by readers and
// writers. It returns "" for unrecognized extensions.
func Infer(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".npy":
		return "npy"
	case ".npz":
		return "npz"
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpg"
	case ".csv":
		return "csv"
	default:
		return ""
	}
}

// ReadFile loads an array from path. When format is empty it is inferred
// from the extension.
func ReadFile(path, format string) (*Array, error) {
	if format == "" {
		format = Infer(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch format {
	case "npy":
		return ReadNPY(f)
	case "npz":
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return readNPZ(f, info.Size())
	case "png", "jpg":
		return readImage(f)
	case "csv":
		return readCSV(f)
	default:
		return nil, fmt.Errorf("field: unsupported input format %q for %s", format, path)
	}
}

// WriteFile saves an array to path, honoring the overwrite policy. When
// format is empty it is inferred from the extension.
func WriteFile(a *Array, path, format string, overwrite bool) error {
	if format == "" {
		format = Infer(path)
	}
	f, err := fsutil.Create(path, overwrite)
	if err != nil {
		return err
	}
	defer f.Close()

	switch format {
	case "npy":
		return WriteNPY(f, a)
	case "npz":
		return writeNPZ(f, a)
	case "csv":
		return writeCSV(f, a)
	default:
		return fmt.Errorf("field: unsupported output format %q for %s", format, path)
	}
}

// ReadNPY decodes a NumPy array of rank 1 or 2 holding float64 data.
func ReadNPY(r io.Reader) (*Array, error) {
	rd, err := npyio.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("field: reading npy header: %w", err)
	}
	shape := rd.Header.Descr.Shape
	if len(shape) < 1 || len(shape) > 2 {
		return nil, fmt.Errorf("field: npy rank %d not supported", len(shape))
	}
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("field: npy has empty shape %v", shape)
		}
	}
	var data []float64
	if err := rd.Read(&data); err != nil {
		return nil, fmt.Errorf("field: reading npy data: %w", err)
	}
	a := New(shape...)
	if len(data) != a.Len() {
		return nil, fmt.Errorf("field: npy data length %d does not match shape %v", len(data), shape)
	}
	copy(a.Data, data)
	return a, nil
}

// WriteNPY encodes an array of rank 1 or 2 as a NumPy file.
func WriteNPY(w io.Writer, a *Array) error {
	switch a.Rank() {
	case 1:
		return npyio.Write(w, a.Data)
	case 2:
		return npyio.Write(w, mat.NewDense(a.Shape[0], a.Shape[1], a.Data))
	default:
		return fmt.Errorf("field: npy rank %d not supported", a.Rank())
	}
}

// readNPZ decodes the first array entry of a NumPy zip archive.
func readNPZ(r io.ReaderAt, size int64) (*Array, error) {
	return readNPZEntry(r, size, "")
}

// ReadNPZVar loads the named variable from an npz archive. Variables are
// stored as "<name>.npy" entries.
func ReadNPZVar(path, name string) (*Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return readNPZEntry(f, info.Size(), name)
}

func readNPZEntry(r io.ReaderAt, size int64, name string) (*Array, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("field: reading npz archive: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("field: npz archive is empty")
	}

	var entry *zip.File
	if name == "" {
		entry = zr.File[0]
		for _, f := range zr.File {
			if f.Name == "arr_0.npy" {
				entry = f
				break
			}
		}
	} else {
		for _, f := range zr.File {
			if f.Name == name+".npy" || f.Name == name {
				entry = f
				break
			}
		}
		if entry == nil {
			return nil, fmt.Errorf("field: npz archive has no variable %q", name)
		}
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadNPY(rc)
}

// writeNPZ encodes the array as a single-entry NumPy zip archive.
func writeNPZ(w io.Writer, a *Array) error {
	zw := zip.NewWriter(w)
	entry, err := zw.Create("arr_0.npy")
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteNPY(&buf, a); err != nil {
		return err
	}
	if _, err := entry.Write(buf.Bytes()); err != nil {
		return err
	}
	return zw.Close()
}

// readImage decodes a PNG or JPEG into a grayscale luminance matrix with
// values in [0, 255].
func readImage(r io.Reader) (*Array, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("field: decoding image: %w", err)
	}
	b := img.Bounds()
	a := New(b.Dy(), b.Dx())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma, scaled from 16-bit channels to [0, 255].
			lum := (0.299*float64(r16) + 0.587*float64(g16) + 0.114*float64(b16)) / 257.0
			a.Data[(y-b.Min.Y)*b.Dx()+(x-b.Min.X)] = lum
		}
	}
	return a, nil
}

// readCSV decodes a headerless numeric CSV into a matrix.
func readCSV(r io.Reader) (*Array, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("field: reading csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("field: csv is empty")
	}
	rows, cols := len(records), len(records[0])
	a := New(rows, cols)
	for i, rec := range records {
		if len(rec) != cols {
			return nil, fmt.Errorf("field: csv row %d has %d fields, expected %d", i, len(rec), cols)
		}
		for j, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("field: csv cell (%d,%d) %q is not numeric", i, j, cell)
			}
			a.Data[i*cols+j] = v
		}
	}
	return a, nil
}

// writeCSV encodes a rank-1 or rank-2 array as headerless numeric CSV.
func writeCSV(w io.Writer, a *Array) error {
	m, err := a.Matrix()
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	rows, cols := m.Dims()
	rec := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			rec[j] = strconv.FormatFloat(m.At(i, j), 'f', 6, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
