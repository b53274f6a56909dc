package storage

import (
	"fmt"
	"image"
)

// SummaryFilename is written last for every completed source.
const SummaryFilename = "video_meta_data.json"

const summaryVersion = 1

// VideoMetaSummary describes a fully processed source.
type VideoMetaSummary struct {
	Version   int `json:"version"`
	NumFrames int `json:"num_frames"`
	Height    int `json:"height"`
	Width     int `json:"width"`
}

func NewVideoMetaSummary(numFrames, height, width int) VideoMetaSummary {
	return VideoMetaSummary{
		Version:   summaryVersion,
		NumFrames: numFrames,
		Height:    height,
		Width:     width,
	}
}

// SourceRef locates the output directory of one source.
type SourceRef struct {
	Dataset string
	Split   string
	Source  string
}

// Storage persists extraction artifacts.
type Storage interface {
	PrepareSource(ref SourceRef) error
	WriteMeta(ref SourceRef, frameIndex, detIndex int, row []float64) error
	WriteCrop(ref SourceRef, frameIndex, detIndex, offsetIndex int, img image.Image) error
	WriteMask(ref SourceRef, frameIndex, detIndex int, mask image.Image) error
	WriteSummary(ref SourceRef, summary VideoMetaSummary) error
	ReadSummary(ref SourceRef) (VideoMetaSummary, bool, error)
}

func MetaFilename(frameIndex, detIndex int) string {
	return fmt.Sprintf("%05d_%05d.txt", frameIndex, detIndex)
}

func CropFilename(frameIndex, detIndex, offsetIndex int) string {
	return fmt.Sprintf("%05d_%05d_%02d.png", frameIndex, detIndex, offsetIndex)
}

func MaskFilename(frameIndex, detIndex int) string {
	return fmt.Sprintf("%05d_%05d_mask.png", frameIndex, detIndex)
}
