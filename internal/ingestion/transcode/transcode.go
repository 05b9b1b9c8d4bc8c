// Package transcode downsizes raw page rasters and re-encodes them in a web
// image format.
package transcode

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"

	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/adyeetya/blogs-backend/pkg/enums"
	pkgerrors "github.com/adyeetya/blogs-backend/pkg/errors"
)

const (
	DefaultMaxWidth = 1600
	DefaultQuality  = 82

	// fallbackAspect is height/width assumed when the source reports no
	// dimensions. It is an approximation for portrait magazine pages.
	fallbackAspect = 4.0 / 3.0
)

// Options configures a Transcoder. Format is fixed for the lifetime of the
// transcoder so one run never mixes encodings.
type Options struct {
	MaxWidth int
	Quality  int
	Format   enums.PageFormat
}

// Result describes a transcoded page on local disk.
type Result struct {
	Path      string
	Width     int
	Height    int
	SizeBytes int64
	Format    enums.PageFormat
}

type encodeFunc func(w io.Writer, img image.Image, quality int) error

type Transcoder struct {
	opts   Options
	encode encodeFunc
}

func New(opts Options) (*Transcoder, error) {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = DefaultMaxWidth
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.Format == "" {
		opts.Format = enums.PageFormatWebP
	}

	var enc encodeFunc
	switch opts.Format {
	case enums.PageFormatWebP:
		enc = encodeWebP
	case enums.PageFormatJPEG:
		enc = encodeJPEG
	default:
		return nil, fmt.Errorf("unsupported page format %q", opts.Format)
	}
	return &Transcoder{opts: opts, encode: enc}, nil
}

// Format returns the encoding every page from this transcoder uses.
func (t *Transcoder) Format() enums.PageFormat {
	return t.opts.Format
}

// Transcode reads rawPath, scales it to at most MaxWidth (never upscaling)
// and writes the encoded image to outPath.
func (t *Transcoder) Transcode(ctx context.Context, rawPath, outPath string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	src, err := decode(rawPath)
	if err != nil {
		return Result{}, err
	}

	b := src.Bounds()
	width, height := TargetSize(b.Dx(), b.Dy(), t.opts.MaxWidth)

	var out image.Image = src
	if width != b.Dx() || height != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		out = dst
	}

	size, err := t.write(outPath, out)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Path:      outPath,
		Width:     width,
		Height:    height,
		SizeBytes: size,
		Format:    t.opts.Format,
	}, nil
}

// TargetSize computes output dimensions: width is capped at maxWidth and
// height follows the source aspect ratio. When the source does not report a
// height, height is estimated from a 4:3 portrait ratio.
func TargetSize(srcWidth, srcHeight, maxWidth int) (int, int) {
	width := maxWidth
	if srcWidth > 0 && srcWidth < maxWidth {
		width = srcWidth
	}
	if srcWidth <= 0 || srcHeight <= 0 {
		return width, int(math.Round(float64(width) * fallbackAspect))
	}
	height := int(math.Round(float64(srcHeight) * float64(width) / float64(srcWidth)))
	if height < 1 {
		height = 1
	}
	return width, height
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTranscodeFailed, err, "open raw page")
	}
	defer f.Close()

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTranscodeFailed, err, "decode raw page")
	}
	if img.Bounds().Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeTranscodeFailed, "raw page has no pixels")
	}
	return img, nil
}

func (t *Transcoder) write(outPath string, img image.Image) (int64, error) {
	f, err := os.Create(outPath)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create transcoded page")
	}
	w := bufio.NewWriter(f)
	if err := t.encode(w, img, t.opts.Quality); err != nil {
		_ = f.Close()
		return 0, pkgerrors.Wrap(pkgerrors.CodeTranscodeFailed, err, "encode "+string(t.opts.Format))
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flush transcoded page")
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stat transcoded page")
	}
	if err := f.Close(); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close transcoded page")
	}
	return info.Size(), nil
}

func encodeWebP(w io.Writer, img image.Image, quality int) error {
	return webp.Encode(w, img, webp.Options{Quality: quality})
}

func encodeJPEG(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}
