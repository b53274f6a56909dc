// Package detector defines the object detector collaborator and an HTTP
// client for detection services.
package detector

import (
	"context"
	"image"

	"github.com/kdimtricp/objextract/internal/media"
)

// Detector finds objects in a single frame.
type Detector interface {
	Detect(ctx context.Context, frame media.Frame) ([]Detection, error)
}

// Detection is one object found in a frame.
type Detection struct {
	Box     image.Rectangle
	Score   float64
	ClassID int
	Mask    image.Image // optional
}

// BBox returns the box as [x1, y1, x2, y2].
func (d Detection) BBox() [4]int {
	return [4]int{d.Box.Min.X, d.Box.Min.Y, d.Box.Max.X, d.Box.Max.Y}
}

// Meta returns the metadata row stored for the detection:
// frame index, box corners, score and class.
func (d Detection) Meta(frameIndex int) []float64 {
	b := d.BBox()
	return []float64{
		float64(frameIndex),
		float64(b[0]), float64(b[1]), float64(b[2]), float64(b[3]),
		d.Score,
		float64(d.ClassID),
	}
}

// FilterByScore keeps detections scoring at least threshold, in order.
func FilterByScore(detections []Detection, threshold float64) []Detection {
	kept := detections[:0:0]
	for _, d := range detections {
		if d.Score >= threshold {
			kept = append(kept, d)
		}
	}
	return kept
}
