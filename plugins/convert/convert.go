// Package convert implements the general format-conversion plugin: field
// files in and out of the generic formats, jet-colormap images of scalar
// fields, and ordered image sequences assembled into Motion-JPEG movies.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/icza/mjpeg"

	"github.com/enspipe/enspipe/internal/ctxlog"
	"github.com/enspipe/enspipe/internal/field"
	"github.com/enspipe/enspipe/internal/fsutil"
	"github.com/enspipe/enspipe/internal/plugin"
)

const (
	defaultQuality = 95
	defaultFPS     = 25
)

// Options are the plugin's settings, decoded from the plugin configuration
// file.
type Options struct {
	// Suffix is appended to movie names assembled from several inputs.
	Suffix string `hcl:"suffix,optional"`
	// Binary clips fields to {0, 1} before writing.
	Binary bool `hcl:"binary,optional"`
	// ColorScale fixes the [min, max] range mapped onto the colormap;
	// values outside are clipped. Empty means per-field range.
	ColorScale []float64 `hcl:"color_scale,optional"`
	// Quality is the JPEG quality, 1 to 100.
	Quality int `hcl:"quality,optional"`
	// FPS is the movie frame rate.
	FPS int `hcl:"video_fps,optional"`
}

// Plugin converts between field formats and assembles movies.
type Plugin struct {
	plugin.Template
	opts Options
}

// New returns the plugin with default options.
func New() *Plugin {
	return &Plugin{opts: Options{Quality: defaultQuality, FPS: defaultFPS}}
}

func (p *Plugin) Name() string { return "convert" }

func (p *Plugin) Options() any { return &p.opts }

func (p *Plugin) checkOptions() error {
	if p.opts.Quality < 1 || p.opts.Quality > 100 {
		return fmt.Errorf("convert plugin: quality must be between 1 and 100, got %d", p.opts.Quality)
	}
	if p.opts.FPS <= 0 {
		return fmt.Errorf("convert plugin: video fps must be positive, got %d", p.opts.FPS)
	}
	if n := len(p.opts.ColorScale); n != 0 && n != 2 {
		return fmt.Errorf("convert plugin: color scale needs exactly [min, max], got %d values", n)
	}
	return nil
}

// WriteFile adds jpg and png outputs on top of the generic formats: the
// field is scaled through the color range and rendered with the jet
// colormap.
func (p *Plugin) WriteFile(ctx context.Context, a *field.Array, path, format string, overwrite bool) error {
	if err := p.checkOptions(); err != nil {
		return err
	}
	if format == "" {
		format = field.Infer(path)
	}
	data := a
	if p.opts.Binary {
		data = a.Clone()
		for i, v := range data.Data {
			if v < 0 {
				data.Data[i] = 0
			} else if v > 0 {
				data.Data[i] = 1
			}
		}
	}
	switch format {
	case "jpg", "png":
		if data.Rank() != 2 {
			return fmt.Errorf("convert plugin: image output needs a rank 2 field, got rank %d", data.Rank())
		}
		img := p.render(data)
		f, err := fsutil.Create(path, overwrite)
		if err != nil {
			return err
		}
		if err := jpeg.Encode(f, img, &jpeg.Options{Quality: p.opts.Quality}); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case "npy", "npz", "csv":
		if len(p.opts.ColorScale) == 2 {
			return fmt.Errorf("convert plugin: color scale does not apply to %s output", format)
		}
		return p.Template.WriteFile(ctx, data, path, format, overwrite)
	default:
		return p.Template.WriteFile(ctx, data, path, format, overwrite)
	}
}

// ConvertFiles assembles the member's ordered inputs into a single movie
// when the output format is avi, and falls back to one-to-one conversion
// otherwise.
func (p *Plugin) ConvertFiles(ctx context.Context, files []string, opts plugin.ConvertOptions) ([]string, error) {
	if err := p.checkOptions(); err != nil {
		return nil, err
	}
	if opts.OutputFormat != "avi" {
		return p.Template.ConvertFiles(ctx, files, opts)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("convert plugin: no input files for movie")
	}

	out := p.movieName(files, opts.OutputDir)
	if err := fsutil.CheckWritable(out, opts.Overwrite); err != nil {
		return nil, err
	}

	frames := make([]*field.Array, 0, len(files))
	for _, f := range files {
		a, err := p.ReadFile(ctx, f, opts.InputFormat)
		if err != nil {
			return nil, err
		}
		if p.opts.Binary {
			for i, v := range a.Data {
				if v < 0 {
					a.Data[i] = 0
				} else if v > 0 {
					a.Data[i] = 1
				}
			}
		}
		if a.Rank() != 2 {
			return nil, fmt.Errorf("convert plugin: movie frame %s has rank %d, want 2", f, a.Rank())
		}
		frames = append(frames, a)
	}
	h, w := frames[0].Shape[0], frames[0].Shape[1]
	for i, fr := range frames[1:] {
		if fr.Shape[0] != h || fr.Shape[1] != w {
			return nil, fmt.Errorf("convert plugin: frame %s is %dx%d, want %dx%d",
				files[i+1], fr.Shape[0], fr.Shape[1], h, w)
		}
	}

	if err := p.writeMovie(out, frames, w, h); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("assembled movie", "output", out, "frames", len(frames))
	return []string{out}, nil
}

func (p *Plugin) writeMovie(out string, frames []*field.Array, w, h int) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	aw, err := mjpeg.New(out, int32(w), int32(h), int32(p.opts.FPS))
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, fr := range frames {
		buf.Reset()
		if err := jpeg.Encode(&buf, p.render(fr), &jpeg.Options{Quality: p.opts.Quality}); err != nil {
			aw.Close()
			return err
		}
		if err := aw.AddFrame(buf.Bytes()); err != nil {
			aw.Close()
			return err
		}
	}
	return aw.Close()
}

// movieName derives the output file name: several inputs share their common
// basename prefix with trailing zeros stripped, a single input keeps its
// root.
func (p *Plugin) movieName(files []string, outDir string) string {
	var root string
	if len(files) > 1 {
		root = strings.TrimRight(filepath.Base(commonPrefix(files)), "0")
		root += p.opts.Suffix
	} else {
		base := filepath.Base(files[0])
		root = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if root == "" || root == "." {
		root = "out"
	}
	return filepath.Join(outDir, root+".avi")
}

func commonPrefix(files []string) string {
	prefix := files[0]
	for _, f := range files[1:] {
		for !strings.HasPrefix(f, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}

// render maps a scalar field through the jet colormap after scaling it into
// [0, 1] over the color range.
func (p *Plugin) render(a *field.Array) image.Image {
	h, w := a.Shape[0], a.Shape[1]
	lo, hi := a.MinMax()
	if len(p.opts.ColorScale) == 2 {
		lo, hi = p.opts.ColorScale[0], p.opts.ColorScale[1]
	}
	span := hi - lo

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := a.Data[y*w+x]
			if v < lo {
				v = lo
			} else if v > hi {
				v = hi
			}
			t := 0.0
			if span > 0 {
				t = (v - lo) / span
			}
			r, g, b := jet(t)
			i := img.PixOffset(x, y)
			img.Pix[i+0] = r
			img.Pix[i+1] = g
			img.Pix[i+2] = b
			img.Pix[i+3] = 0xff
		}
	}
	return img
}

// jet maps t in [0, 1] to the classic blue-cyan-yellow-red ramp.
func jet(t float64) (r, g, b uint8) {
	ch := func(v float64) uint8 {
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		return uint8(v * 255)
	}
	r = ch(1.5 - abs(4*t-3))
	g = ch(1.5 - abs(4*t-2))
	b = ch(1.5 - abs(4*t-1))
	return r, g, b
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
