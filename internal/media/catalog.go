package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Format tells how the sources of a split are stored on disk.
type Format string

const (
	FormatVideo  Format = "video"
	FormatFrames Format = "frames"
)

func (f Format) Valid() bool {
	return f == FormatVideo || f == FormatFrames
}

// folder is the sub-directory of a split holding sources of this format.
func (f Format) folder() string {
	if f == FormatFrames {
		return "frames"
	}
	return "videos"
}

// SourceName maps a catalog entry to the name used for its output directory:
// video files lose their extension, frame folders keep their name.
func SourceName(format Format, entry string) string {
	if format == FormatVideo {
		return strings.TrimSuffix(entry, filepath.Ext(entry))
	}
	return entry
}

// DirCatalog enumerates the sources of a split laid out as
// <root>/<split>/videos/<file> or <root>/<split>/frames/<dir>.
type DirCatalog struct {
	root      string
	videoExts map[string]bool
	ffmpeg    *FFmpeg
}

// NewDirCatalog creates a catalog rooted at root. ffmpeg may be nil when only
// frame-folder splits are read.
func NewDirCatalog(root string, videoExts []string, ffmpeg *FFmpeg) *DirCatalog {
	exts := make(map[string]bool, len(videoExts))
	for _, ext := range videoExts {
		exts[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &DirCatalog{root: root, videoExts: exts, ffmpeg: ffmpeg}
}

// Dir returns the directory the sources of split live in.
func (c *DirCatalog) Dir(split string, format Format) string {
	return filepath.Join(c.root, split, format.folder())
}

// List returns the entry names of a split, sorted.
func (c *DirCatalog) List(split string, format Format) ([]string, error) {
	dir := c.Dir(split, format)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		switch format {
		case FormatVideo:
			if entry.Type().IsRegular() && c.videoExts[Extension(entry.Name())] {
				names = append(names, entry.Name())
			}
		case FormatFrames:
			if entry.IsDir() {
				names = append(names, entry.Name())
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open opens one entry returned by List.
func (c *DirCatalog) Open(split string, format Format, entry string) (Source, error) {
	path := filepath.Join(c.Dir(split, format), entry)
	switch format {
	case FormatVideo:
		if c.ffmpeg == nil {
			return nil, fmt.Errorf("video split %s needs ffmpeg", split)
		}
		vs, err := c.ffmpeg.Open(path)
		if err != nil {
			return nil, err
		}
		return vs, nil
	case FormatFrames:
		fs, err := OpenFolder(path)
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		return nil, fmt.Errorf("unknown source format %q", format)
	}
}
