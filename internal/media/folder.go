package media

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var imageExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"bmp":  true,
	"tif":  true,
	"tiff": true,
}

// FolderSource reads a directory of already-extracted frames in
// lexicographic file name order.
type FolderSource struct {
	name   string
	dir    string
	files  []string
	pos    int
	width  int
	height int
	valid  bool
}

// OpenFolder lists the images under dir. A folder without any decodable
// image is returned as an invalid source.
func OpenFolder(dir string) (*FolderSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame folder: %w", err)
	}

	fs := &FolderSource{
		name: SourceName(FormatFrames, filepath.Base(dir)),
		dir:  dir,
	}
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[Extension(entry.Name())] {
			continue
		}
		fs.files = append(fs.files, entry.Name())
	}
	sort.Strings(fs.files)

	if len(fs.files) == 0 {
		return fs, nil
	}

	f, err := os.Open(filepath.Join(dir, fs.files[0]))
	if err != nil {
		return fs, nil
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fs, nil
	}
	fs.width = cfg.Width
	fs.height = cfg.Height
	fs.valid = true
	return fs, nil
}

func (fs *FolderSource) Name() string   { return fs.name }
func (fs *FolderSource) Valid() bool    { return fs.valid }
func (fs *FolderSource) NumFrames() int { return len(fs.files) }
func (fs *FolderSource) Height() int    { return fs.height }
func (fs *FolderSource) Width() int     { return fs.width }

func (fs *FolderSource) HasNext() bool {
	return fs.valid && fs.pos < len(fs.files)
}

func (fs *FolderSource) ReadFrame() (Frame, error) {
	if !fs.HasNext() {
		return Frame{}, io.EOF
	}
	name := fs.files[fs.pos]
	index := fs.pos
	fs.pos++

	f, err := os.Open(filepath.Join(fs.dir, name))
	if err != nil {
		return Frame{}, fmt.Errorf("failed to open frame %s: %w", name, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame %s: %w", name, err)
	}
	return Frame{Index: index, Image: img}, nil
}

func (fs *FolderSource) Close() error { return nil }

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
