package temporal

import (
	"errors"
	"image"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/objextract/internal/media"
)

type sliceSource struct {
	frames []media.Frame
	pos    int
}

func newSliceSource(n int) *sliceSource {
	s := &sliceSource{}
	for i := 0; i < n; i++ {
		s.frames = append(s.frames, media.Frame{Index: i, Image: image.NewGray(image.Rect(0, 0, 2, 2))})
	}
	return s
}

func (s *sliceSource) Name() string   { return "slice" }
func (s *sliceSource) Valid() bool    { return true }
func (s *sliceSource) NumFrames() int { return len(s.frames) }
func (s *sliceSource) Height() int    { return 2 }
func (s *sliceSource) Width() int     { return 2 }
func (s *sliceSource) HasNext() bool  { return s.pos < len(s.frames) }
func (s *sliceSource) Close() error   { return nil }

func (s *sliceSource) ReadFrame() (media.Frame, error) {
	if !s.HasNext() {
		return media.Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func TestWindowCenterAfterPrime(t *testing.T) {
	for _, ts := range []int{1, 2, 3, 5} {
		w := NewWindow(ts)
		src := newSliceSource(w.MaxSize() + 3)

		require.NoError(t, w.Prime(src, w.MaxSize()-1))
		frame, err := src.ReadFrame()
		require.NoError(t, err)
		w.Add(frame)

		mid, err := w.Middle()
		require.NoError(t, err)
		assert.Equal(t, ts, mid.Index, "temporal_size=%d", ts)

		oldest, err := w.Get(-ts)
		require.NoError(t, err)
		assert.Equal(t, 0, oldest.Index)

		newest, err := w.Get(ts)
		require.NoError(t, err)
		assert.Equal(t, 2*ts, newest.Index)
	}
}

func TestWindowSlidesFIFO(t *testing.T) {
	w := NewWindow(2)
	for i := 0; i < 12; i++ {
		w.Add(media.Frame{Index: i})
		if w.Len() < w.MaxSize() {
			continue
		}
		for off := -2; off <= 2; off++ {
			f, err := w.Get(off)
			require.NoError(t, err)
			assert.Equal(t, i-2+off, f.Index, "after frame %d offset %d", i, off)
		}
	}
	assert.Equal(t, 5, w.Len())
}

func TestWindowGetOutOfRange(t *testing.T) {
	w := NewWindow(1)
	w.Add(media.Frame{Index: 0})
	w.Add(media.Frame{Index: 1})

	_, err := w.Get(1)
	assert.True(t, errors.Is(err, ErrOffsetOutOfRange), "newest slot not filled yet")

	_, err = w.Get(2)
	assert.ErrorIs(t, err, ErrOffsetOutOfRange)

	_, err = w.Get(-2)
	assert.ErrorIs(t, err, ErrOffsetOutOfRange)

	f, err := w.Get(-1)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Index)
}

func TestPrimeShortSource(t *testing.T) {
	tests := []struct {
		name    string
		frames  int
		wantErr bool
	}{
		{"empty", 0, true},
		{"fewer than fill", 1, true},
		{"exactly fill", 2, true},
		{"one spare frame", 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(1)
			err := w.Prime(newSliceSource(tt.frames), w.MaxSize()-1)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrShortSource)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPrimeRejectsWrongFill(t *testing.T) {
	w := NewWindow(2)
	err := w.Prime(newSliceSource(10), 3)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrShortSource)
}
