// Package config holds the settings of an extraction run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kdimtricp/objextract/internal/ledger"
	"github.com/kdimtricp/objextract/internal/media"
)

// maxOffsets keeps the offset index within two digits of the crop name.
const maxOffsets = 100

// Split is one dataset split and how its sources are stored.
type Split struct {
	Name   string       `json:"name"`
	Format media.Format `json:"format"`
}

type Config struct {
	DatasetName string `json:"dataset_name"`
	InputRoot   string `json:"input_root"`
	OutputRoot  string `json:"output_root"`
	LogsDir     string `json:"logs_dir"`

	LedgerDir         string `json:"ledger_dir"`
	LedgerBackend     string `json:"ledger_backend"`
	ResumeFromHistory bool   `json:"resume_from_history"`

	TemporalSize    int   `json:"temporal_size"`
	TemporalOffsets []int `json:"temporal_offsets"`

	DetectionThreshold float64  `json:"detection_threshold"`
	DetectorURL        string   `json:"detector_url"`
	DetectorTimeout    Duration `json:"detector_timeout"`

	AllowedVideoExtensions []string `json:"allowed_video_extensions"`
	Splits                 []Split  `json:"splits"`

	SamplesFolderName string `json:"samples_folder_name"`
	MetaFolderName    string `json:"meta_folder_name"`
	SaveMasks         bool   `json:"save_masks"`

	StatusAddr string `json:"status_addr"`
}

// Duration is a time.Duration encoded as a string like "30s" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		DatasetName:            "dataset",
		InputRoot:              "./data",
		OutputRoot:             "./output",
		LogsDir:                "./logs",
		LedgerDir:              "./history",
		LedgerBackend:          ledger.BackendFile,
		ResumeFromHistory:      true,
		TemporalSize:           3,
		TemporalOffsets:        []int{-3, -1, 0, 1, 3},
		DetectionThreshold:     0.5,
		DetectorURL:            "http://localhost:8000/detect",
		DetectorTimeout:        Duration(30 * time.Second),
		AllowedVideoExtensions: []string{"avi", "mp4", "mkv", "mov"},
		Splits: []Split{
			{Name: "train", Format: media.FormatVideo},
			{Name: "test", Format: media.FormatFrames},
		},
		SamplesFolderName: "samples",
		MetaFolderName:    "meta",
	}
}

// Load reads a JSON config file on top of Default. Fields missing from the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return cfg, nil
}

// LoadEnv loads an optional .env file and applies OBJEXTRACT_* variables
// on top of cfg.
func LoadEnv(cfg *Config, envFiles ...string) error {
	if err := godotenv.Load(envFiles...); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("OBJEXTRACT_DATASET", &cfg.DatasetName)
	str("OBJEXTRACT_INPUT_ROOT", &cfg.InputRoot)
	str("OBJEXTRACT_OUTPUT_ROOT", &cfg.OutputRoot)
	str("OBJEXTRACT_LOGS_DIR", &cfg.LogsDir)
	str("OBJEXTRACT_LEDGER_DIR", &cfg.LedgerDir)
	str("OBJEXTRACT_LEDGER_BACKEND", &cfg.LedgerBackend)
	str("OBJEXTRACT_DETECTOR_URL", &cfg.DetectorURL)
	str("OBJEXTRACT_STATUS_ADDR", &cfg.StatusAddr)

	if v, ok := lookup("OBJEXTRACT_RESUME"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OBJEXTRACT_RESUME: %w", err)
		}
		cfg.ResumeFromHistory = b
	}
	if v, ok := lookup("OBJEXTRACT_TEMPORAL_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid OBJEXTRACT_TEMPORAL_SIZE: %w", err)
		}
		cfg.TemporalSize = n
	}
	if v, ok := lookup("OBJEXTRACT_TEMPORAL_OFFSETS"); ok && v != "" {
		offsets, err := ParseOffsets(v)
		if err != nil {
			return fmt.Errorf("invalid OBJEXTRACT_TEMPORAL_OFFSETS: %w", err)
		}
		cfg.TemporalOffsets = offsets
	}
	if v, ok := lookup("OBJEXTRACT_DETECTION_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid OBJEXTRACT_DETECTION_THRESHOLD: %w", err)
		}
		cfg.DetectionThreshold = f
	}
	return nil
}

// ParseOffsets parses a comma separated list such as "-3,0,3".
func ParseOffsets(s string) ([]int, error) {
	var offsets []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, n)
	}
	return offsets, nil
}

// MaxSize is the capacity of the temporal window.
func (c *Config) MaxSize() int {
	return 2*c.TemporalSize + 1
}

func (c *Config) Validate() error {
	if c.DatasetName == "" {
		return fmt.Errorf("dataset_name is required")
	}
	if !ledger.ValidName(c.DatasetName) {
		return fmt.Errorf("invalid dataset_name %q", c.DatasetName)
	}
	if c.InputRoot == "" || c.OutputRoot == "" {
		return fmt.Errorf("input_root and output_root are required")
	}
	if c.TemporalSize < 1 {
		return fmt.Errorf("temporal_size must be at least 1, got %d", c.TemporalSize)
	}
	if len(c.TemporalOffsets) == 0 {
		return fmt.Errorf("temporal_offsets must not be empty")
	}
	if len(c.TemporalOffsets) > maxOffsets {
		return fmt.Errorf("at most %d temporal_offsets are supported, got %d", maxOffsets, len(c.TemporalOffsets))
	}
	for _, off := range c.TemporalOffsets {
		if off < -c.TemporalSize || off > c.TemporalSize {
			return fmt.Errorf("temporal offset %d outside [-%d, %d]", off, c.TemporalSize, c.TemporalSize)
		}
	}
	if c.DetectionThreshold < 0 || c.DetectionThreshold > 1 {
		return fmt.Errorf("detection_threshold must be within [0, 1], got %v", c.DetectionThreshold)
	}
	switch c.LedgerBackend {
	case ledger.BackendFile, ledger.BackendSQLite:
	default:
		return fmt.Errorf("unknown ledger_backend %q", c.LedgerBackend)
	}
	if len(c.Splits) == 0 {
		return fmt.Errorf("at least one split is required")
	}
	seen := make(map[string]bool, len(c.Splits))
	for _, s := range c.Splits {
		if !ledger.ValidName(s.Name) {
			return fmt.Errorf("invalid split name %q", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate split %q", s.Name)
		}
		seen[s.Name] = true
		if !s.Format.Valid() {
			return fmt.Errorf("split %s has unknown format %q", s.Name, s.Format)
		}
		if s.Format == media.FormatVideo && len(c.AllowedVideoExtensions) == 0 {
			return fmt.Errorf("split %s reads videos but allowed_video_extensions is empty", s.Name)
		}
	}
	return nil
}
