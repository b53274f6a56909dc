// Package extraction runs the detector over every source of a dataset and
// stores per-detection metadata and temporally offset crops.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/kdimtricp/objextract/internal/config"
	"github.com/kdimtricp/objextract/internal/detector"
	"github.com/kdimtricp/objextract/internal/ledger"
	"github.com/kdimtricp/objextract/internal/media"
	"github.com/kdimtricp/objextract/internal/storage"
	"github.com/kdimtricp/objextract/internal/temporal"
)

var (
	// ErrDetector wraps failures returned by the detector.
	ErrDetector = errors.New("detector failed")

	// ErrOutputCollision is returned when two entries of a split map to the
	// same output directory.
	ErrOutputCollision = errors.New("sources share an output directory")
)

// Catalog enumerates and opens the sources of a split.
type Catalog interface {
	List(split string, format media.Format) ([]string, error)
	Open(split string, format media.Format, entry string) (media.Source, error)
}

type Pipeline struct {
	cfg      config.Config
	catalog  Catalog
	detector detector.Detector
	ledger   ledger.Ledger
	storage  storage.Storage
	logger   *slog.Logger
	progress *Progress
}

func New(cfg config.Config, catalog Catalog, det detector.Detector, led ledger.Ledger, store storage.Storage, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if catalog == nil || det == nil || led == nil || store == nil {
		return nil, fmt.Errorf("catalog, detector, ledger and storage are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cfg:      cfg,
		catalog:  catalog,
		detector: det,
		ledger:   led,
		storage:  store,
		logger:   logger,
		progress: &Progress{},
	}, nil
}

// Progress exposes the live progress of the pipeline.
func (p *Pipeline) Progress() *Progress {
	return p.progress
}

// Run processes every configured split in order.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	p.logger.InfoContext(ctx, "extraction started",
		slog.String("dataset", p.cfg.DatasetName),
		slog.Int("splits", len(p.cfg.Splits)))
	p.progress.start(p.cfg.DatasetName)

	var total Stats
	for _, split := range p.cfg.Splits {
		stats, err := p.RunSplit(ctx, split)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	p.progress.finish()
	p.logger.InfoContext(ctx, "extraction finished",
		slog.Int("processed", total.Processed),
		slog.Int("invalid", total.Invalid+total.Short),
		slog.Int("detections", total.Detections),
		slog.Int("crops", total.Crops))
	return total, nil
}

// RunSplit processes the sources of one split in sorted name order,
// skipping those already recorded in the ledger when resuming.
func (p *Pipeline) RunSplit(ctx context.Context, split config.Split) (Stats, error) {
	key := ledger.Key{Dataset: p.cfg.DatasetName, Split: split.Name}
	logger := p.logger.With(slog.String("split", split.Name), slog.String("format", string(split.Format)))
	logger.InfoContext(ctx, "split started")

	names, err := p.catalog.List(split.Name, split.Format)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list split %s: %w", split.Name, err)
	}
	sort.Strings(names)
	if err := checkOutputNames(split.Format, names); err != nil {
		return Stats{}, fmt.Errorf("split %s: %w", split.Name, err)
	}

	var stats Stats
	stats.Sources = len(names)
	logger.InfoContext(ctx, "sources enumerated", slog.Int("count", len(names)))

	if p.cfg.ResumeFromHistory {
		done, err := p.ledger.Load(key)
		if err != nil {
			return stats, fmt.Errorf("failed to load ledger: %w", err)
		}
		names = ledger.Filter(names, done)
		stats.Filtered = stats.Sources - len(names)

		names, stats.Recovered, err = p.recoverFinished(ctx, key, split, names)
		if err != nil {
			return stats, err
		}
		logger.InfoContext(ctx, "ledger applied",
			slog.Int("remaining", len(names)),
			slog.Int("filtered", stats.Filtered),
			slog.Int("recovered", stats.Recovered))
	}
	p.progress.record(Stats{Sources: stats.Sources, Filtered: stats.Filtered, Recovered: stats.Recovered})

	p.progress.startSplit(split.Name, len(names))
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			logger.WarnContext(ctx, "split interrupted", slog.Int("completed", i), slog.Int("total", len(names)))
			return stats, err
		}

		p.progress.startSource(name, i)
		logger.InfoContext(ctx, "processing source",
			slog.String("source", name),
			slog.String("progress", fmt.Sprintf("%d/%d", i+1, len(names))))

		srcStats, err := p.processSource(ctx, logger.With(slog.String("source", name)), key, split, name)
		stats.add(srcStats)
		p.progress.record(srcStats)
		if err != nil {
			return stats, fmt.Errorf("source %s: %w", name, err)
		}
	}

	logger.InfoContext(ctx, "split finished",
		slog.Int("processed", stats.Processed),
		slog.Int("invalid", stats.Invalid),
		slog.Int("short", stats.Short))
	return stats, nil
}

// recoverFinished marks done the sources whose summary was written by an
// earlier run that stopped before reaching the ledger.
func (p *Pipeline) recoverFinished(ctx context.Context, key ledger.Key, split config.Split, names []string) ([]string, int, error) {
	remaining := names[:0:0]
	recovered := 0
	for _, name := range names {
		ref := p.sourceRef(split, name)
		_, ok, err := p.storage.ReadSummary(ref)
		if err != nil {
			p.logger.WarnContext(ctx, "unreadable summary, reprocessing source",
				slog.String("source", name), slog.Any("error", err))
			ok = false
		}
		if !ok {
			remaining = append(remaining, name)
			continue
		}
		if err := p.markDone(key, name); err != nil {
			return nil, recovered, err
		}
		recovered++
	}
	return remaining, recovered, nil
}

// checkOutputNames fails when two entries, such as a.avi and a.mp4, would
// write into the same output directory.
func checkOutputNames(format media.Format, names []string) error {
	seen := make(map[string]string, len(names))
	for _, name := range names {
		out := media.SourceName(format, name)
		if prev, ok := seen[out]; ok {
			return fmt.Errorf("%w: %s and %s both map to %q", ErrOutputCollision, prev, name, out)
		}
		seen[out] = name
	}
	return nil
}

func (p *Pipeline) sourceRef(split config.Split, entry string) storage.SourceRef {
	return storage.SourceRef{
		Dataset: p.cfg.DatasetName,
		Split:   split.Name,
		Source:  media.SourceName(split.Format, entry),
	}
}

func (p *Pipeline) processSource(ctx context.Context, logger *slog.Logger, key ledger.Key, split config.Split, entry string) (Stats, error) {
	var stats Stats

	src, err := p.catalog.Open(split.Name, split.Format, entry)
	if err != nil {
		return stats, fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	if !src.Valid() {
		logger.WarnContext(ctx, "invalid source, skipping")
		stats.Invalid = 1
		return stats, p.markDone(key, entry)
	}

	window := temporal.NewWindow(p.cfg.TemporalSize)
	if err := window.Prime(src, window.MaxSize()-1); err != nil {
		if errors.Is(err, temporal.ErrShortSource) {
			logger.WarnContext(ctx, "source does not have enough frames", slog.Any("error", err))
			stats.Short = 1
			return stats, p.markDone(key, entry)
		}
		return stats, err
	}
	stats.Frames = window.Len()

	ref := p.sourceRef(split, entry)
	if err := p.storage.PrepareSource(ref); err != nil {
		return stats, err
	}

	frameIndex := p.cfg.TemporalSize - 1
	for {
		frame, err := src.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.WarnContext(ctx, "frame read failed, ending source", slog.Any("error", err))
			break
		}
		window.Add(frame)
		frameIndex++
		stats.Frames++

		middle, err := window.Middle()
		if err != nil {
			return stats, err
		}

		detections, err := p.detector.Detect(ctx, middle)
		stats.DetectorCalls++
		if err != nil {
			return stats, fmt.Errorf("%w: frame %d: %w", ErrDetector, frameIndex, err)
		}

		for d, det := range detections {
			if err := p.storage.WriteMeta(ref, frameIndex, d, det.Meta(frameIndex)); err != nil {
				return stats, err
			}
			for i, offset := range p.cfg.TemporalOffsets {
				offsetFrame, err := window.Get(offset)
				if err != nil {
					return stats, err
				}
				if err := p.storage.WriteCrop(ref, frameIndex, d, i, media.Crop(offsetFrame.Image, det.Box)); err != nil {
					return stats, err
				}
				stats.Crops++
			}
			if p.cfg.SaveMasks && det.Mask != nil {
				if err := p.storage.WriteMask(ref, frameIndex, d, det.Mask); err != nil {
					return stats, err
				}
			}
		}
		stats.Detections += len(detections)
	}

	summary := storage.NewVideoMetaSummary(src.NumFrames(), src.Height(), src.Width())
	if err := p.storage.WriteSummary(ref, summary); err != nil {
		return stats, err
	}
	if err := p.markDone(key, entry); err != nil {
		return stats, err
	}

	stats.Processed = 1
	logger.InfoContext(ctx, "source finished",
		slog.Int("frames", stats.Frames),
		slog.Int("detections", stats.Detections),
		slog.Int("crops", stats.Crops))
	return stats, nil
}

func (p *Pipeline) markDone(key ledger.Key, entry string) error {
	if err := p.ledger.MarkDone(key, entry); err != nil {
		return fmt.Errorf("failed to record completion of %s: %w", entry, err)
	}
	return nil
}
