package pipeline

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/handiism/snap-memories/internal/http"
	ioutils "github.com/handiism/snap-memories/internal/io"
	"github.com/handiism/snap-memories/internal/model"
	"github.com/handiism/snap-memories/internal/pairing"
	"github.com/handiism/snap-memories/internal/planner"
)

// perform runs one action and returns its outcome and the number of bytes
// it downloaded.
func (r *run) perform(ctx context.Context, a *planner.Action) (model.Outcome, int64) {
	switch a.Kind {
	case planner.ActionDownload:
		return r.download(ctx, a)
	case planner.ActionExtractArchive:
		return r.extract(ctx, a), 0
	case planner.ActionRenameMissingExtension:
		return r.rename(ctx, a), 0
	case planner.ActionCombineImage, planner.ActionCombineVideo:
		if a.Deferred {
			return r.combineDeferred(ctx, a), 0
		}
		main, overlay := r.resolve(a.Main), r.resolve(a.Overlay)
		if a.Kind == planner.ActionCombineVideo {
			return r.combineVideo(ctx, a, main, overlay, a.Output), 0
		}
		return r.combineImage(ctx, main, overlay, a.Output), 0
	case planner.ActionCopyThrough:
		return r.copyThrough(ctx, r.resolve(a.Main), a.Output), 0
	case planner.ActionApplyMetadata:
		return r.applyMetadata(ctx, a), 0
	case planner.ActionCleanup:
		return r.cleanup(a), 0
	}
	return model.Failed(model.Errorf(model.MalformedInput, "dispatch", "unknown action kind %d", a.Kind)), 0
}

// download fetches a remote item, retrying transient errors with
// exponential backoff, and names the file after its sniffed format.
func (r *run) download(ctx context.Context, a *planner.Action) (model.Outcome, int64) {
	var (
		res *http.FetchResult
		err error
	)

	attempts := r.e.opts.MaxRetries + 1
	tries := 0
	for tries < attempts {
		tries++
		res, err = r.e.services.Fetcher.Fetch(ctx, a.URL, a.Output, r.downloadProgress(a))
		if err == nil || !model.IsRetryable(err) || tries == attempts || r.ctx.Err() != nil {
			break
		}

		r.e.emit(Event{
			Type:     EventRetry,
			ActionID: a.ID,
			Stage:    a.Stage(),
			Kind:     a.Kind,
			Identity: a.Identity,
			Message:  fmt.Sprintf("Retry %d/%d for %s", tries, r.e.opts.MaxRetries, a.Identity),
			Level:    LevelWarning,
			Total:    len(r.plan.Actions),
		})
		r.e.waitForRetry(r.ctx, tries-1)
	}
	if err != nil {
		o := model.Failed(err)
		o.Attempts = tries
		return o, 0
	}

	format, err := ioutils.SniffFile(a.Output)
	if err != nil {
		return model.Failed(model.NewError(model.TransientIO, "sniff download", err)), res.Bytes
	}
	if format.IsZero() {
		format = ioutils.FormatFromContentType(res.ContentType)
	}
	if format.IsZero() {
		_ = os.Remove(a.Output)
		return model.Failed(model.Errorf(model.MalformedInput, "download",
			"unrecognized content (%s)", res.ContentType)), res.Bytes
	}

	final := a.Output + format.Ext
	if err := ioutils.MoveFile(ctx, a.Output, final); err != nil {
		return model.Failed(model.NewError(model.TransientIO, "name download", err)), res.Bytes
	}

	o := model.Succeeded(final)
	o.Attempts = tries
	o.Detail = format.MIME
	return o, res.Bytes
}

// progressStep is the number of bytes between two progress events of a
// download.
const progressStep = 512 << 10

// downloadProgress returns a Fetch callback emitting EventProgress for the
// first chunk, then at most once per progressStep, plus once when the body
// is complete.
func (r *run) downloadProgress(a *planner.Action) func(written, total int64) {
	last := int64(-progressStep)
	return func(written, total int64) {
		done := total > 0 && written >= total
		if written-last < progressStep && !done {
			return
		}
		last = written

		msg := fmt.Sprintf("Downloading %s: %s", a.Identity, humanize.Bytes(uint64(written)))
		if total > 0 {
			msg = fmt.Sprintf("Downloading %s: %s of %s", a.Identity, humanize.Bytes(uint64(written)), humanize.Bytes(uint64(total)))
		}
		r.e.emit(Event{
			Type:     EventProgress,
			ActionID: a.ID,
			Stage:    a.Stage(),
			Kind:     a.Kind,
			Identity: a.Identity,
			Message:  msg,
			Level:    LevelVerbose,
			Total:    len(r.plan.Actions),
			Received: written,
			Size:     total,
		})
	}
}

// extract unpacks a zip archive into the action's directory. A downloaded
// file that is not an archive is moved there as is, so every download ends
// up as a directory of loose files.
func (r *run) extract(ctx context.Context, a *planner.Action) model.Outcome {
	src := r.resolve(a.Main)

	format, err := ioutils.SniffFile(src)
	if err != nil {
		return model.Failed(fileError("open archive", err))
	}

	if format.IsZip() {
		files, err := ioutils.ExtractZip(ctx, src, a.Output)
		if err != nil {
			if errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrAlgorithm) || errors.Is(err, zip.ErrChecksum) {
				return model.Failed(model.NewError(model.MalformedInput, "extract", err).WithReason(model.ReasonNotAnArchive))
			}
			return model.Failed(model.NewError(model.TransientIO, "extract", err))
		}
		o := model.Succeeded(a.Output)
		o.Detail = fmt.Sprintf("%d files", len(files))
		return o
	}

	if !a.Main.IsOutput() {
		return model.Failed(model.Errorf(model.MalformedInput, "extract", "%s is not a zip archive", filepath.Base(src)).WithReason(model.ReasonNotAnArchive))
	}

	if err := ioutils.EnsureDir(a.Output); err != nil {
		return model.Failed(model.NewError(model.TransientIO, "extract", err))
	}
	if err := ioutils.MoveFile(ctx, src, filepath.Join(a.Output, filepath.Base(src))); err != nil {
		return model.Failed(model.NewError(model.TransientIO, "extract", err))
	}
	o := model.Succeeded(a.Output)
	o.Detail = "1 file"
	return o
}

func (r *run) rename(ctx context.Context, a *planner.Action) model.Outcome {
	move := ioutils.MoveFile
	if a.KeepInput {
		move = ioutils.CopyFile
	}
	if err := move(ctx, r.resolve(a.Main), a.Output); err != nil {
		return model.Failed(fileError("rename", err))
	}
	return model.Succeeded(a.Output)
}

func (r *run) combineImage(ctx context.Context, main, overlay, out string) model.Outcome {
	if err := r.e.services.Combiner.CombineImage(ctx, main, overlay, out); err != nil {
		return model.Failed(err)
	}
	return model.Succeeded(out)
}

func (r *run) combineVideo(ctx context.Context, a *planner.Action, main, overlay, out string) model.Outcome {
	res, err := r.e.services.Combiner.CombineVideo(ctx, main, overlay, out, a.Capabilities)

	var o model.Outcome
	if err != nil {
		o = model.Failed(err)
	} else {
		o = model.Succeeded(res.Output)
		o.Detail = res.Encoder
	}
	if res != nil {
		o.Attempts = len(res.Attempts)
		if failures := res.Failures(); err == nil && len(failures) > 0 {
			o.Detail = fmt.Sprintf("%s after %d failed encoders", res.Encoder, len(failures))
		}
	}
	return o
}

func (r *run) copyThrough(ctx context.Context, src, out string) model.Outcome {
	if err := r.e.services.Combiner.CopyThrough(ctx, src, out); err != nil {
		return model.Failed(err)
	}
	return model.Succeeded(out)
}

// combineDeferred picks the inputs of a downloaded memory from its
// normalized directory: a main with an overlay is composited, anything
// else is copied through.
func (r *run) combineDeferred(ctx context.Context, a *planner.Action) model.Outcome {
	dir := r.resolve(a.Main)

	res, err := r.inspect(a)
	if err != nil {
		return model.Failed(fileError("scan download", err))
	}

	if len(res.Pairs) > 0 {
		p := res.Pairs[0]
		stem := a.Output + model.CombinedSuffix
		if p.Main.Kind == model.KindVideo {
			return r.combineVideo(ctx, a, p.Main.Location, p.Overlay.Location, stem+".mp4")
		}
		return r.combineImage(ctx, p.Main.Location, p.Overlay.Location, stem+".jpg")
	}

	if len(res.Standalone) > 0 {
		s := res.Standalone[0]
		return r.copyThrough(ctx, s.Location, a.Output+s.Ext)
	}

	return model.Failed(model.Errorf(model.MalformedInput, "combine", "no usable media in %s", filepath.Base(dir)).WithReason(model.ReasonNoUsableMedia))
}

// inspect scans and pairs the files of a deferred combine. The result is
// kept, so routing and running the action look at the directory once.
func (r *run) inspect(a *planner.Action) (*pairing.Result, error) {
	r.mu.Lock()
	res, ok := r.inspected[a.ID]
	r.mu.Unlock()
	if ok {
		return res, nil
	}

	found, err := r.e.services.Scanner.Tree(r.resolve(a.Main))
	if err != nil {
		return nil, err
	}
	res = pairing.Resolve(found.Assets)

	r.mu.Lock()
	r.inspected[a.ID] = res
	r.mu.Unlock()
	return res, nil
}

func (r *run) applyMetadata(ctx context.Context, a *planner.Action) model.Outcome {
	path := r.resolve(a.Main)

	res, err := r.e.services.Metadata.Apply(ctx, path, a.Record)
	if err != nil {
		return model.Failed(err)
	}
	if res.Skipped != "" {
		o := model.Skipped(res.Skipped)
		o.Output = res.Path
		o.Detail = res.Detail
		return o
	}
	o := model.Succeeded(res.Path)
	o.Detail = res.Strategy
	return o
}

// cleanup removes the action's targets. Targets produced by actions that
// did not succeed, and paths that no longer exist, are passed over.
func (r *run) cleanup(a *planner.Action) model.Outcome {
	removed := 0
	for _, t := range a.Targets {
		path := t.Path
		if t.IsOutput() {
			o := r.stats.outcome(t.From)
			if o.Status != model.StatusSucceeded || o.Output == "" {
				continue
			}
			path = o.Output
		}
		if _, err := os.Lstat(path); err != nil {
			continue
		}
		if err := ioutils.RemoveAll(path); err != nil {
			return model.Failed(model.NewError(model.TransientIO, "cleanup", err))
		}
		removed++
	}

	if removed == 0 {
		return model.Skipped(model.ReasonNothingToClean)
	}
	o := model.Succeeded("")
	o.Detail = fmt.Sprintf("%d removed", removed)
	return o
}

// fileError classifies a filesystem error. A missing input will not appear
// on retry, so it counts as malformed.
func fileError(op string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return model.NewError(model.MalformedInput, op, err)
	}
	return model.NewError(model.TransientIO, op, err)
}
