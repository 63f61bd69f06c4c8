// Package imaging converts arbitrary uploaded images into the canonical
// form sent to the vision model: RGB, at most 512px on the longest side,
// JPEG-encoded.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"
	"runtime"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"

	"autostory/internal/domain"
)

const (
	// MaxDimension bounds both output dimensions. Images are only ever
	// shrunk, never upscaled.
	MaxDimension = 512

	jpegQuality = 85
)

// Processor normalizes image bytes. Decode and resample are CPU-bound, so
// every call passes through a weighted semaphore sized to the number of
// CPUs; request goroutines queue at the gate instead of saturating the
// scheduler.
type Processor struct {
	sem *semaphore.Weighted
}

func NewProcessor() *Processor {
	return &Processor{sem: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))}
}

// Normalize decodes the image, flattens it to RGB over a white background,
// shrinks it so neither dimension exceeds MaxDimension while preserving
// aspect ratio, and re-encodes it as JPEG. Every failure, including a
// decoder panic on hostile input, comes back wrapped in
// domain.ErrUnprocessableImage; nothing escapes past this boundary.
func (p *Processor) Normalize(ctx context.Context, data []byte) ([]byte, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: acquire slot: %v", domain.ErrUnprocessableImage, err)
	}
	defer p.sem.Release(1)
	return normalize(data)
}

func normalize(data []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: decoder panic: %v", domain.ErrUnprocessableImage, r)
		}
	}()

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrUnprocessableImage, err)
	}

	rgb := flatten(src)
	rgb = shrink(rgb)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", domain.ErrUnprocessableImage, err)
	}
	return buf.Bytes(), nil
}

// flatten composites the source over white, discarding any alpha channel so
// the JPEG encoder sees plain truecolor.
func flatten(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	return dst
}

func shrink(src *image.RGBA) *image.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w <= MaxDimension && h <= MaxDimension {
		return src
	}

	scale := float64(MaxDimension) / float64(w)
	if h > w {
		scale = float64(MaxDimension) / float64(h)
	}
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}
