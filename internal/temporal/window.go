// Package temporal implements the sliding frame window that keeps
// temporal_size frames on each side of the frame handed to the detector.
package temporal

import (
	"errors"
	"fmt"
	"io"

	"github.com/kdimtricp/objextract/internal/media"
)

var (
	// ErrOffsetOutOfRange is returned by Get for offsets outside the window
	// or not yet filled.
	ErrOffsetOutOfRange = errors.New("temporal offset out of range")

	// ErrShortSource is returned by Prime when the source cannot fill the
	// window and still deliver a frame to center on.
	ErrShortSource = errors.New("source too short to fill temporal window")
)

// Window is a fixed-capacity FIFO of frames. Its center is the frame
// temporalSize positions after the oldest retained frame.
type Window struct {
	frames       []media.Frame
	temporalSize int
	maxSize      int
	head         int // oldest retained frame
	size         int
}

// NewWindow creates a window holding 2*temporalSize+1 frames.
func NewWindow(temporalSize int) *Window {
	if temporalSize < 1 {
		temporalSize = 1
	}
	maxSize := 2*temporalSize + 1
	return &Window{
		frames:       make([]media.Frame, maxSize),
		temporalSize: temporalSize,
		maxSize:      maxSize,
	}
}

// TemporalSize is the number of frames kept on each side of the center.
func (w *Window) TemporalSize() int { return w.temporalSize }

// MaxSize is the window capacity, 2*TemporalSize()+1.
func (w *Window) MaxSize() int { return w.maxSize }

// Len is the number of frames currently retained.
func (w *Window) Len() int { return w.size }

// Add appends frame, evicting the oldest frame when the window is full.
func (w *Window) Add(frame media.Frame) {
	if w.size < w.maxSize {
		w.frames[(w.head+w.size)%w.maxSize] = frame
		w.size++
		return
	}
	w.frames[w.head] = frame
	w.head = (w.head + 1) % w.maxSize
}

// Get returns the frame offset positions away from the center.
func (w *Window) Get(offset int) (media.Frame, error) {
	pos := w.temporalSize + offset
	if offset < -w.temporalSize || offset > w.temporalSize || pos >= w.size {
		return media.Frame{}, fmt.Errorf("%w: offset %d with %d of %d frames retained",
			ErrOffsetOutOfRange, offset, w.size, w.maxSize)
	}
	return w.frames[(w.head+pos)%w.maxSize], nil
}

// Middle returns the center frame.
func (w *Window) Middle() (media.Frame, error) {
	return w.Get(0)
}

// Prime reads fill frames from src into the window. fill must be
// MaxSize()-1 so that the next Add makes the window exactly full. Priming
// fails unless src still has a frame left afterwards: a source that can only
// fill the window never produces a center frame.
func (w *Window) Prime(src media.Source, fill int) error {
	if fill != w.maxSize-1 {
		return fmt.Errorf("prime needs %d frames, got %d", w.maxSize-1, fill)
	}

	for i := 0; i < fill; i++ {
		frame, err := src.ReadFrame()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s has %d frames, need more than %d", ErrShortSource, src.Name(), i, fill)
		}
		if err != nil {
			return fmt.Errorf("%w: %s: read failed after %d frames: %v", ErrShortSource, src.Name(), i, err)
		}
		w.Add(frame)
	}

	if !src.HasNext() {
		return fmt.Errorf("%w: %s has %d frames, need more than %d", ErrShortSource, src.Name(), fill, fill)
	}
	return nil
}
