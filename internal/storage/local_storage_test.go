package storage

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

var testRef = SourceRef{Dataset: "avenue", Split: "train", Source: "01"}

func TestFilenames(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{MetaFilename(1, 0), "00001_00000.txt"},
		{MetaFilename(12345, 7), "12345_00007.txt"},
		{CropFilename(1, 0, 2), "00001_00000_02.png"},
		{CropFilename(40, 3, 11), "00040_00003_11.png"},
		{MaskFilename(5, 1), "00005_00001_mask.png"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %s, want %s", tt.got, tt.want)
		}
	}
}

func TestLocalStorage(t *testing.T) {
	tmpDir := t.TempDir()
	storage, err := NewLocalStorage(tmpDir, "", "")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	sourceDir := filepath.Join(tmpDir, "avenue", "train", "01")

	t.Run("PrepareSource", func(t *testing.T) {
		stale := filepath.Join(sourceDir, "samples", "99999_00000_00.png")
		if err := os.MkdirAll(filepath.Dir(stale), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(stale, []byte("stale"), 0644); err != nil {
			t.Fatal(err)
		}

		if err := storage.PrepareSource(testRef); err != nil {
			t.Fatalf("Failed to prepare source: %v", err)
		}

		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Errorf("Stale output from an earlier attempt was not removed")
		}
		for _, sub := range []string{"samples", "meta"} {
			if info, err := os.Stat(filepath.Join(sourceDir, sub)); err != nil || !info.IsDir() {
				t.Errorf("Expected %s directory to exist", sub)
			}
		}
	})

	t.Run("WriteMeta", func(t *testing.T) {
		if err := storage.WriteMeta(testRef, 3, 1, []float64{3, 10.5, -2}); err != nil {
			t.Fatalf("Failed to write meta: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(sourceDir, "meta", "00003_00001.txt"))
		if err != nil {
			t.Fatalf("Failed to read meta: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Fatalf("Expected 3 lines, got %d", len(lines))
		}
		for i, want := range []float64{3, 10.5, -2} {
			got, err := strconv.ParseFloat(lines[i], 64)
			if err != nil || got != want {
				t.Errorf("line %d = %q, want %v", i, lines[i], want)
			}
		}
	})

	t.Run("WriteCrop", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 4, 3))
		img.Set(1, 1, color.RGBA{R: 200, A: 255})

		if err := storage.WriteCrop(testRef, 3, 1, 2, img); err != nil {
			t.Fatalf("Failed to write crop: %v", err)
		}

		f, err := os.Open(filepath.Join(sourceDir, "samples", "00003_00001_02.png"))
		if err != nil {
			t.Fatalf("Failed to open crop: %v", err)
		}
		defer f.Close()

		decoded, err := png.Decode(f)
		if err != nil {
			t.Fatalf("Failed to decode crop: %v", err)
		}
		if decoded.Bounds().Dx() != 4 || decoded.Bounds().Dy() != 3 {
			t.Errorf("Unexpected crop size %v", decoded.Bounds())
		}
	})

	t.Run("WriteMask", func(t *testing.T) {
		if err := storage.WriteMask(testRef, 3, 1, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
			t.Fatalf("Failed to write mask: %v", err)
		}
		if _, err := os.Stat(filepath.Join(sourceDir, "samples", "00003_00001_mask.png")); err != nil {
			t.Errorf("Mask was not written: %v", err)
		}
	})

	t.Run("Summary", func(t *testing.T) {
		if _, ok, err := storage.ReadSummary(testRef); err != nil || ok {
			t.Fatalf("Expected no summary before write, got ok=%v err=%v", ok, err)
		}

		want := NewVideoMetaSummary(5, 120, 160)
		if err := storage.WriteSummary(testRef, want); err != nil {
			t.Fatalf("Failed to write summary: %v", err)
		}

		got, ok, err := storage.ReadSummary(testRef)
		if err != nil || !ok {
			t.Fatalf("Failed to read summary: ok=%v err=%v", ok, err)
		}
		if got != want {
			t.Errorf("Summary mismatch: got %+v, want %+v", got, want)
		}
		if _, err := os.Stat(filepath.Join(sourceDir, SummaryFilename+".tmp")); !os.IsNotExist(err) {
			t.Errorf("Temporary summary file left behind")
		}
	})

	t.Run("PathTraversalPrevention", func(t *testing.T) {
		bad := []SourceRef{
			{Dataset: "avenue", Split: "train", Source: "../../etc"},
			{Dataset: "..", Split: "train", Source: "01"},
			{Dataset: "avenue", Split: "a/b", Source: "01"},
			{Dataset: "avenue", Split: "train", Source: ""},
		}
		for _, ref := range bad {
			if err := storage.PrepareSource(ref); err == nil {
				t.Errorf("Path traversal was not prevented for %+v", ref)
			}
		}
	})
}
