// Package metadata embeds capture time and location into finished files.
//
// JPEG and PNG files get an EXIF block written in process. MP4 and MOV files
// go through exiftool, falling back to an ffmpeg stream-copy remux. Embedding
// is best effort: a format that can't carry metadata, or a file every
// strategy fails on, is reported as skipped rather than failed.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
	"github.com/rs/zerolog"

	"github.com/handiism/snap-memories/internal/ffmpeg"
	ioutils "github.com/handiism/snap-memories/internal/io"
	"github.com/handiism/snap-memories/internal/model"
)

// Result describes what Apply did.
type Result struct {
	// Path is the file metadata was applied to. It never changes.
	Path string

	// Strategy names the method that embedded the metadata.
	Strategy string

	// Skipped is the skip reason, empty when metadata was applied.
	Skipped string
	Detail  string
}

// Service applies metadata in place.
type Service struct {
	runner ffmpeg.Runner
	log    zerolog.Logger
}

// New creates a Service. runner is only used for videos.
func New(runner ffmpeg.Runner, log zerolog.Logger) *Service {
	return &Service{runner: runner, log: log}
}

type videoStrategy struct {
	name  string
	apply func(ctx context.Context, path string, rec *model.MemoryRecord) error
}

// Apply embeds rec's capture time and location into the file at path and
// sets the file's modification time to the capture time.
//
// A nil record, or one without a capture time, is skipped with
// metadata-absent. The returned error is only non-nil when the file can't
// be read or ctx is cancelled.
func (s *Service) Apply(ctx context.Context, path string, rec *model.MemoryRecord) (Result, error) {
	res := Result{Path: path}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if rec == nil || rec.CapturedAt.IsZero() {
		res.Skipped = model.ReasonMetadataAbsent
		return res, nil
	}

	format, err := ioutils.SniffFile(path)
	if err != nil {
		return res, model.NewError(model.TransientIO, "read", err)
	}

	switch format {
	case ioutils.FormatJPEG:
		res.Strategy = "exif-jpeg"
		err = s.rewrite(ctx, path, withEXIF(rec, InjectJPEG))
	case ioutils.FormatPNG:
		res.Strategy = "exif-png"
		err = s.rewrite(ctx, path, withEXIF(rec, InjectPNG))
	case ioutils.FormatMP4, ioutils.FormatMOV:
		res.Strategy, err = s.applyVideo(ctx, path, rec)
	default:
		res.Skipped = model.ReasonMetadataUnsupported
		res.Detail = fmt.Sprintf("%s files can't carry metadata", strings.TrimPrefix(format.Ext, "."))
		if format.IsZero() {
			res.Detail = "unrecognized format"
		}
		return res, nil
	}

	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		s.log.Debug().Err(err).Str("path", path).Msg("metadata not embedded")
		res.Strategy = ""
		res.Skipped = model.ReasonMetadataUnsupported
		res.Detail = err.Error()
		return res, nil
	}

	if err := ioutils.SetTimes(path, rec.CapturedAt); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("failed to set file times")
	}
	return res, nil
}

// withEXIF adapts an injector into a rewrite transform carrying rec.
func withEXIF(rec *model.MemoryRecord, inject func([]byte, *exif.IfdBuilder) ([]byte, error)) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		ib, err := BuildEXIF(rec.CapturedAt, location(rec))
		if err != nil {
			return nil, err
		}
		return inject(data, ib)
	}
}

// rewrite replaces the file at path with transform(contents).
func (s *Service) rewrite(ctx context.Context, path string, transform func([]byte) ([]byte, error)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out, err := transform(data)
	if err != nil {
		return err
	}
	return ioutils.WriteFile(ctx, path, out)
}

func (s *Service) applyVideo(ctx context.Context, path string, rec *model.MemoryRecord) (string, error) {
	strategies := []videoStrategy{
		{name: "exiftool", apply: s.exifTool},
		{name: "ffmpeg", apply: s.remux},
	}

	var errs []string
	for _, st := range strategies {
		err := st.apply(ctx, path, rec)
		if err == nil {
			return st.name, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		errs = append(errs, st.name+": "+err.Error())
	}
	return "", errors.New(strings.Join(errs, "; "))
}

func (s *Service) exifTool(ctx context.Context, path string, rec *model.MemoryRecord) error {
	var lat, lon *float64
	if loc := location(rec); loc != nil {
		lat, lon = &loc.Latitude, &loc.Longitude
	}
	_, err := s.runner.Run(ctx, ffmpeg.ToolExifTool, ffmpeg.ExifToolArgs(path, rec.CapturedAt, lat, lon))
	return err
}

// remux rewrites the container with ffmpeg, copying every stream.
func (s *Service) remux(ctx context.Context, path string, rec *model.MemoryRecord) error {
	var iso string
	if loc := location(rec); loc != nil {
		iso = loc.ISO6709()
	}

	tmp := ioutils.TempPath(path)
	if _, err := s.runner.Run(ctx, ffmpeg.ToolFFmpeg, ffmpeg.MetadataArgs(path, tmp, rec.CapturedAt, iso)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// location returns the record's coordinates, or nil when they are missing
// or the 0,0 placeholder.
func location(rec *model.MemoryRecord) *model.GeoPoint {
	if rec.Location == nil || rec.Location.IsZero() {
		return nil
	}
	return rec.Location
}
