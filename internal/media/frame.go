// Package media provides sequential frame sources over video files and
// image folders, and the directory catalog used to enumerate them.
package media

import (
	"image"
	"image/draw"
)

// Frame is one decoded picture together with its position in the source.
type Frame struct {
	Index int
	Image image.Image
}

// Source is a sequential frame reader. ReadFrame returns io.EOF once the
// source is exhausted.
type Source interface {
	Name() string
	Valid() bool
	NumFrames() int
	Height() int
	Width() int
	HasNext() bool
	ReadFrame() (Frame, error)
	Close() error
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of img covered by box. The box is clipped to the
// image bounds; a box that misses the image entirely yields a 1x1 crop at the
// nearest corner.
func Crop(img image.Image, box image.Rectangle) image.Image {
	bounds := img.Bounds()
	r := box.Canon().Intersect(bounds)
	if r.Empty() {
		x := clamp(box.Min.X, bounds.Min.X, bounds.Max.X-1)
		y := clamp(box.Min.Y, bounds.Min.Y, bounds.Max.Y-1)
		r = image.Rect(x, y, x+1, y+1)
	}

	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
