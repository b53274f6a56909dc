// Package logging builds the structured logger of an extraction run.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// NewRunID returns a fresh identifier for one process run.
func NewRunID() string {
	return uuid.New().String()
}

// LogFilename names the log file of a run started at start.
func LogFilename(start time.Time, runID string) string {
	return fmt.Sprintf("%s_%s.log", start.Format("2006-01-02_15-04-05"), runID)
}

// New returns a logger writing to stderr and, when logsDir is set, to a
// per-run file inside it. The returned close function flushes the file.
func New(logsDir, runID string, level slog.Level) (*slog.Logger, func() error, error) {
	var w io.Writer = os.Stderr
	closeFn := func() error { return nil }

	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
		path := filepath.Join(logsDir, LogFilename(time.Now(), runID))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = f.Close
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("run_id", runID)), closeFn, nil
}
