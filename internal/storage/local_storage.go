package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LocalStorage writes artifacts under
// <basePath>/<dataset>/<split>/<source>/{meta,samples}.
type LocalStorage struct {
	basePath      string
	samplesFolder string
	metaFolder    string
}

func NewLocalStorage(basePath, samplesFolder, metaFolder string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	if samplesFolder == "" {
		samplesFolder = "samples"
	}
	if metaFolder == "" {
		metaFolder = "meta"
	}
	return &LocalStorage{
		basePath:      basePath,
		samplesFolder: samplesFolder,
		metaFolder:    metaFolder,
	}, nil
}

// SourceDir returns the output directory of ref.
func (ls *LocalStorage) SourceDir(ref SourceRef) (string, error) {
	parts := []string{ref.Dataset, ref.Split, ref.Source}
	for _, p := range parts {
		cleanPath := filepath.Clean(p)
		if p == "" || cleanPath != p || strings.Contains(cleanPath, "..") || strings.ContainsAny(p, `/\`) {
			return "", fmt.Errorf("invalid path component %q", p)
		}
	}
	return filepath.Join(ls.basePath, ref.Dataset, ref.Split, ref.Source), nil
}

// PrepareSource discards output left by an interrupted attempt and creates
// empty meta and samples folders.
func (ls *LocalStorage) PrepareSource(ref SourceRef) error {
	dir, err := ls.SourceDir(ref)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	for _, sub := range []string{ls.samplesFolder, ls.metaFolder} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return nil
}

// WriteMeta stores row one value per line in scientific notation.
func (ls *LocalStorage) WriteMeta(ref SourceRef, frameIndex, detIndex int, row []float64) error {
	dir, err := ls.SourceDir(ref)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, ls.metaFolder, MetaFilename(frameIndex, detIndex))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, v := range row {
		w.WriteString(strconv.FormatFloat(v, 'e', 18, 64))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func (ls *LocalStorage) WriteCrop(ref SourceRef, frameIndex, detIndex, offsetIndex int, img image.Image) error {
	dir, err := ls.SourceDir(ref)
	if err != nil {
		return err
	}
	return writePNG(filepath.Join(dir, ls.samplesFolder, CropFilename(frameIndex, detIndex, offsetIndex)), img)
}

func (ls *LocalStorage) WriteMask(ref SourceRef, frameIndex, detIndex int, mask image.Image) error {
	dir, err := ls.SourceDir(ref)
	if err != nil {
		return err
	}
	return writePNG(filepath.Join(dir, ls.samplesFolder, MaskFilename(frameIndex, detIndex)), mask)
}

// WriteSummary writes the summary through a temporary file so a present
// summary is always complete.
func (ls *LocalStorage) WriteSummary(ref SourceRef, summary VideoMetaSummary) error {
	dir, err := ls.SourceDir(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	path := filepath.Join(dir, SummaryFilename)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// ReadSummary reports whether ref has a completed summary.
func (ls *LocalStorage) ReadSummary(ref SourceRef) (VideoMetaSummary, bool, error) {
	dir, err := ls.SourceDir(ref)
	if err != nil {
		return VideoMetaSummary{}, false, err
	}

	data, err := os.ReadFile(filepath.Join(dir, SummaryFilename))
	if os.IsNotExist(err) {
		return VideoMetaSummary{}, false, nil
	}
	if err != nil {
		return VideoMetaSummary{}, false, fmt.Errorf("failed to read summary: %w", err)
	}

	var summary VideoMetaSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return VideoMetaSummary{}, false, fmt.Errorf("failed to parse summary: %w", err)
	}
	return summary, true, nil
}

func writePNG(path string, img image.Image) error {
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if err := png.Encode(dst, img); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to save file: %w", err)
	}
	return dst.Close()
}
