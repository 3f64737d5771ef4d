// Package combine composites overlays onto photos and videos.
//
// Images are composited in process with ImageService. Videos go through
// ffmpeg, trying each encoder of a capability set in order and falling back
// to software encoding, which always runs last.
package combine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/handiism/snap-memories/internal/capability"
	"github.com/handiism/snap-memories/internal/ffmpeg"
	ioutils "github.com/handiism/snap-memories/internal/io"
	"github.com/handiism/snap-memories/internal/model"
)

// Attempt records one encoder tried for a video composite.
type Attempt struct {
	Encoder string
	Err     error
}

// VideoResult describes a finished video composite.
type VideoResult struct {
	Output string

	// Encoder is the encoder that produced Output.
	Encoder string

	// Attempts lists every encoder tried, in order, including the
	// successful one (with a nil Err).
	Attempts []Attempt
}

// Failures returns the attempts that did not succeed.
func (r *VideoResult) Failures() []Attempt {
	var out []Attempt
	for _, a := range r.Attempts {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}

// Service performs combine and copy actions.
type Service struct {
	runner ffmpeg.Runner
	images *ioutils.ImageService
	log    zerolog.Logger
}

// New creates a Service. runner is only used for video composites.
func New(runner ffmpeg.Runner, images *ioutils.ImageService, log zerolog.Logger) *Service {
	if images == nil {
		images = ioutils.NewImageService(ioutils.DefaultJPEGQuality)
	}
	return &Service{runner: runner, images: images, log: log}
}

// CombineImage composites overlay onto main and writes a JPEG to out.
//
// Inputs that cannot be decoded fail with MalformedInput. out is written to
// a temporary path and renamed into place.
func (s *Service) CombineImage(ctx context.Context, main, overlay, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	base, err := s.images.DecodeFile(main)
	if err != nil {
		return classifyOpen("decode main", err)
	}
	layer, err := s.images.DecodeFile(overlay)
	if err != nil {
		return classifyOpen("decode overlay", err)
	}

	img := s.images.Composite(base, layer)
	err = ioutils.WriteAtomic(out, func(w io.Writer) error {
		return s.images.EncodeJPEG(w, img)
	})
	if err != nil {
		return model.NewError(model.TransientIO, "write composite", err)
	}
	return nil
}

// CombineVideo overlays the still image overlay onto every frame of main
// and writes an MP4 to out.
//
// Encoders are tried in the order given by caps.Strategies(); libx264 is
// always the last strategy. The first encoder that succeeds wins. The
// action fails with ResourceUnavailable only when every strategy failed.
func (s *Service) CombineVideo(ctx context.Context, main, overlay, out string, caps capability.Set) (*VideoResult, error) {
	if err := s.checkVideo(ctx, main); err != nil {
		return nil, err
	}
	if _, _, err := s.images.DecodeConfig(overlay); err != nil {
		return nil, classifyOpen("decode overlay", err)
	}
	if err := ioutils.EnsureDir(filepath.Dir(out)); err != nil {
		return nil, model.NewError(model.TransientIO, "create output dir", err)
	}

	res := &VideoResult{Output: out}
	tmp := ioutils.TempPath(out)

	for _, enc := range caps.Strategies() {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		_, err := s.runner.Run(ctx, ffmpeg.ToolFFmpeg, ffmpeg.OverlayArgs(main, overlay, tmp, enc))
		if err == nil {
			err = os.Rename(tmp, out)
		}
		res.Attempts = append(res.Attempts, Attempt{Encoder: enc.Name, Err: err})

		if err == nil {
			res.Encoder = enc.Name
			s.log.Debug().Str("encoder", enc.Name).Str("output", out).Msg("video composite written")
			return res, nil
		}

		_ = os.Remove(tmp)
		if errors.Is(err, ffmpeg.ErrToolNotFound) {
			return res, model.NewError(model.ResourceUnavailable, "encode", err).WithReason(model.ReasonToolMissing)
		}
		s.log.Warn().Err(err).Str("encoder", enc.Name).Str("main", main).Msg("encoder failed, falling back")
	}

	return res, model.Errorf(model.ResourceUnavailable, "encode",
		"all encoders failed (%s)", attemptNames(res.Attempts)).WithReason(model.ReasonEncodeExhausted)
}

// CopyThrough copies src to out unchanged.
func (s *Service) CopyThrough(ctx context.Context, src, out string) error {
	if err := ioutils.CopyFile(ctx, src, out); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return classifyOpen("copy", err)
	}
	return nil
}

// checkVideo checks that main has a decodable video stream.
func (s *Service) checkVideo(ctx context.Context, main string) error {
	if _, err := os.Stat(main); err != nil {
		return classifyOpen("inspect video", err)
	}

	res, err := s.runner.Run(ctx, ffmpeg.ToolFFprobe, ffmpeg.StreamArgs(main))
	switch {
	case errors.Is(err, ffmpeg.ErrToolNotFound):
		return model.NewError(model.ResourceUnavailable, "inspect video", err).WithReason(model.ReasonToolMissing)
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return model.NewError(model.MalformedInput, "inspect video", err).WithReason(model.ReasonUndecodableInput)
	case strings.TrimSpace(res.Stdout) == "":
		return model.Errorf(model.MalformedInput, "inspect video", "%s has no video stream", filepath.Base(main)).WithReason(model.ReasonUndecodableInput)
	}
	return nil
}

// classifyOpen maps file errors to TransientIO and decoding errors to
// MalformedInput with reason undecodable-input. A missing input will not
// appear on retry, so it counts as malformed.
func classifyOpen(op string, err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) && !errors.Is(err, os.ErrNotExist) {
		return model.NewError(model.TransientIO, op, err)
	}
	return model.NewError(model.MalformedInput, op, err).WithReason(model.ReasonUndecodableInput)
}

func attemptNames(attempts []Attempt) string {
	names := make([]string, len(attempts))
	for i, a := range attempts {
		names[i] = a.Encoder
	}
	return strings.Join(names, ", ")
}
