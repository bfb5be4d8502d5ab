// Package imaging applies orientation fixes to camera frames.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"camview/internal/apperr"
)

const defaultQuality = 90

// Rotator turns an encoded image clockwise by a multiple of 90 degrees.
type Rotator interface {
	Rotate(img []byte, degrees int) ([]byte, error)
}

type JPEGRotator struct {
	Quality int
}

func NewJPEGRotator() *JPEGRotator {
	return &JPEGRotator{Quality: defaultQuality}
}

// NormalizeDegrees maps degrees into [0, 360) and rejects anything that is
// not a quarter turn.
func NormalizeDegrees(degrees int) (int, error) {
	d := ((degrees % 360) + 360) % 360
	if d%90 != 0 {
		return 0, fmt.Errorf("%w: rotation must be a multiple of 90, got %d", apperr.ErrValidation, degrees)
	}
	return d, nil
}

func (r *JPEGRotator) Rotate(img []byte, degrees int) ([]byte, error) {
	d, err := NormalizeDegrees(degrees)
	if err != nil {
		return nil, err
	}
	if d == 0 {
		return img, nil
	}

	src, err := jpeg.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}

	dst := rotate(src, d)

	quality := r.Quality
	if quality <= 0 {
		quality = defaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func rotate(src image.Image, degrees int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	if degrees == 180 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.At(b.Min.X+x, b.Min.Y+y)
			switch degrees {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}
