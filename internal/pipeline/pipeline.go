package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/handiism/snap-memories/internal/capability"
	"github.com/handiism/snap-memories/internal/combine"
	"github.com/handiism/snap-memories/internal/config"
	"github.com/handiism/snap-memories/internal/ffmpeg"
	"github.com/handiism/snap-memories/internal/http"
	ioutils "github.com/handiism/snap-memories/internal/io"
	"github.com/handiism/snap-memories/internal/manifest"
	"github.com/handiism/snap-memories/internal/metadata"
	"github.com/handiism/snap-memories/internal/model"
	"github.com/handiism/snap-memories/internal/pairing"
	"github.com/handiism/snap-memories/internal/planner"
	"github.com/handiism/snap-memories/internal/scan"
)

// ManifestNames are the manifest files of an export. Folder scans never
// treat them as assets, and a folder run reads the first one it finds for
// capture times and locations.
var ManifestNames = []string{"memories_history.html", "memories_history.json"}

// manifestDirs are searched, in order, for a manifest next to a folder input.
var manifestDirs = []string{".", "html", "json"}

// LockName is the lock file held in the output directory during a run.
const LockName = ".memories.lock"

// ErrLocked is returned by Run when another run holds the output directory.
var ErrLocked = errors.New("output directory is in use by another run")

// Pipeline wires scanning, planning and execution together.
//
// Example usage:
//
//	p := pipeline.New(settings, log, nil)
//
//	plan, err := p.Plan(ctx, "/exports/mydata")
//	if err != nil {
//	    return err
//	}
//	stats, err := p.Run(ctx, plan)
type Pipeline struct {
	settings *config.Settings
	log      zerolog.Logger

	runner  ffmpeg.Runner
	fetcher Fetcher

	scanner  *scan.Scanner
	parser   *manifest.Parser
	detector   *capability.Detector
	executor *Executor
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithRunner replaces the ffmpeg/ffprobe/exiftool runner.
func WithRunner(r ffmpeg.Runner) Option {
	return func(p *Pipeline) { p.runner = r }
}

// WithFetcher replaces the HTTP client used for downloads.
func WithFetcher(f Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// New creates a Pipeline from settings. onEvent receives progress events
// and may be nil.
func New(settings *config.Settings, log zerolog.Logger, onEvent func(Event), opts ...Option) *Pipeline {
	p := &Pipeline{settings: settings, log: log}
	for _, opt := range opts {
		opt(p)
	}

	if p.runner == nil {
		p.runner = ffmpeg.NewExecRunner(settings.ToolPaths(), log.GetLevel() <= zerolog.DebugLevel)
	}
	if p.fetcher == nil {
		p.fetcher = http.NewClient(time.Duration(settings.DownloadTimeout) * time.Second)
	}

	p.scanner = scan.New(log, ManifestNames...)
	p.parser = manifest.NewParser(log)
	p.detector = capability.NewDetector(p.runner, settings.UseGPU, log)

	images := ioutils.NewImageService(settings.JPEGQuality)
	p.executor = NewExecutor(OptionsFrom(settings), Services{
		Fetcher:  p.fetcher,
		Combiner: combine.New(p.runner, images, log),
		Metadata: metadata.New(p.runner, log),
		Scanner:  p.scanner,
	}, log, onEvent)

	return p
}

// Encoders returns the hardware encoders usable on this machine.
func (p *Pipeline) Encoders(ctx context.Context) capability.Set {
	return p.detector.Detect(ctx)
}

// Plan scans source and builds the plan for it.
//
// source is either an export folder or a manifest file. A folder's
// manifest, if any, supplies capture metadata; settings.ManifestPath
// overrides it. Planning only reads: nothing is written.
func (p *Pipeline) Plan(ctx context.Context, source string) (*planner.Plan, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}

	var (
		found   *scan.Result
		records []*model.MemoryRecord
	)
	if info.IsDir() {
		found, err = p.scanner.Folder(source)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", source, err)
		}
		records, err = p.folderRecords(source)
		if err != nil {
			return nil, err
		}
	} else {
		records, err = p.parser.Load(source)
		if err != nil {
			return nil, err
		}
		found = p.scanner.Manifest(records)
	}

	outputDir, err := filepath.Abs(p.settings.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("output directory: %w", err)
	}
	workDir, err := filepath.Abs(p.settings.ResolvedWorkDir())
	if err != nil {
		return nil, fmt.Errorf("work directory: %w", err)
	}

	caps := p.detector.Detect(ctx)

	plan := planner.Build(planner.Input{
		Assets:                 found.Assets,
		Pairing:                pairing.Resolve(found.Assets),
		Skipped:                found.Skipped,
		Inputs:                 found.Counts(),
		Records:                model.IndexRecords(records),
		Capabilities:           caps,
		OutputDir:              outputDir,
		WorkDir:                workDir,
		RemoveConsumedArchives: p.settings.RemoveConsumedArchives,
	})

	p.log.Info().
		Int("assets", len(found.Assets)).
		Int("records", len(records)).
		Int("actions", len(plan.Actions)).
		Int("skipped", len(plan.Skipped)).
		Str("encoders", caps.String()).
		Msg("plan built")
	return plan, nil
}

// folderRecords loads the manifest for a folder input. An explicit
// manifest must load; one found next to the input is optional.
func (p *Pipeline) folderRecords(dir string) ([]*model.MemoryRecord, error) {
	if p.settings.ManifestPath != "" {
		return p.parser.Load(p.settings.ManifestPath)
	}

	for _, sub := range manifestDirs {
		for _, name := range ManifestNames {
			path := filepath.Join(dir, sub, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			records, err := p.parser.Load(path)
			if err != nil {
				p.log.Warn().Err(err).Str("manifest", path).Msg("ignoring unreadable manifest")
				continue
			}
			p.log.Debug().Str("manifest", path).Int("records", len(records)).Msg("using manifest")
			return records, nil
		}
	}
	return nil, nil
}

// Run executes plan. Unless the run is a dry run, the output directory is
// locked for its duration.
func (p *Pipeline) Run(ctx context.Context, plan *planner.Plan) (*RunStatistics, error) {
	if !p.settings.DryRun {
		if err := ioutils.EnsureDir(plan.OutputDir); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}

		lock := flock.New(filepath.Join(plan.OutputDir, LockName))
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return nil, ErrLocked
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				p.log.Warn().Err(err).Msg("failed to release output lock")
			}
			_ = os.Remove(lock.Path())
		}()
	}

	return p.executor.Execute(ctx, plan), nil
}
