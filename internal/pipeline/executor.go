package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/handiism/snap-memories/internal/capability"
	"github.com/handiism/snap-memories/internal/combine"
	"github.com/handiism/snap-memories/internal/config"
	"github.com/handiism/snap-memories/internal/http"
	"github.com/handiism/snap-memories/internal/metadata"
	"github.com/handiism/snap-memories/internal/model"
	"github.com/handiism/snap-memories/internal/pairing"
	"github.com/handiism/snap-memories/internal/planner"
	"github.com/handiism/snap-memories/internal/scan"
)

// Fetcher downloads a remote item to dest.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string, onProgress func(written, total int64)) (*http.FetchResult, error)
}

// Combiner performs combine and copy actions.
type Combiner interface {
	CombineImage(ctx context.Context, main, overlay, out string) error
	CombineVideo(ctx context.Context, main, overlay, out string, caps capability.Set) (*combine.VideoResult, error)
	CopyThrough(ctx context.Context, src, out string) error
}

// MetadataApplier embeds capture metadata into a finished file.
type MetadataApplier interface {
	Apply(ctx context.Context, path string, rec *model.MemoryRecord) (metadata.Result, error)
}

// Services are the collaborators an Executor dispatches work to.
type Services struct {
	Fetcher  Fetcher
	Combiner Combiner
	Metadata MetadataApplier

	// Scanner resolves the inputs of deferred combines.
	Scanner *scan.Scanner
}

// Options controls pool sizes, retries and dry runs. None of them change
// which actions run.
type Options struct {
	DownloadWorkers int
	ImageWorkers    int
	VideoWorkers    int

	// MaxRetries is the number of extra attempts for a download failing
	// with a transient error.
	MaxRetries int

	// RetryCooldown (seconds) and RetryExponent give the wait before retry
	// n as RetryCooldown * RetryExponent^n.
	RetryCooldown float64
	RetryExponent float64

	DryRun bool
}

// OptionsFrom reads executor options from settings.
func OptionsFrom(s *config.Settings) Options {
	return Options{
		DownloadWorkers: s.DownloadWorkers,
		ImageWorkers:    s.ImageWorkers,
		VideoWorkers:    s.VideoWorkers,
		MaxRetries:      s.DownloadMaxRetries,
		RetryCooldown:   s.DownloadRetryCooldown,
		RetryExponent:   s.DownloadRetryExponent,
		DryRun:          s.DryRun,
	}
}

type pool int

const (
	poolDownload pool = iota
	poolImage
	poolVideo
	poolCount
)

func poolFor(kind planner.ActionKind) pool {
	switch kind {
	case planner.ActionDownload:
		return poolDownload
	case planner.ActionCombineVideo:
		return poolVideo
	default:
		return poolImage
	}
}

// inline kinds run on the worker that settled their last dependency.
func inline(kind planner.ActionKind) bool {
	return kind == planner.ActionApplyMetadata || kind == planner.ActionCleanup
}

// Executor runs plans.
//
// Each stage family has its own bounded pool: downloads, image work
// (extract, rename, copy and image composites) and video composites.
// Deferred combines of downloaded memories join the pool matching the
// media found on disk. An action is dispatched once all of its
// dependencies have settled, and only if none of them is failing;
// otherwise it is skipped with dependency-failed. Metadata and cleanup
// actions run inline on the worker that settled their last dependency.
//
// Example usage:
//
//	exec := NewExecutor(opts, services, log, func(e Event) {
//	    fmt.Println(e.Message)
//	})
//	stats := exec.Execute(ctx, plan)
//	if stats.Failed() {
//	    os.Exit(1)
//	}
type Executor struct {
	opts     Options
	services Services
	log      zerolog.Logger

	onEvent func(Event)
	eventMu sync.Mutex
}

// NewExecutor creates an Executor. onEvent may be nil; it is never called
// concurrently.
func NewExecutor(opts Options, services Services, log zerolog.Logger, onEvent func(Event)) *Executor {
	if opts.DownloadWorkers < 1 {
		opts.DownloadWorkers = 1
	}
	if opts.ImageWorkers < 1 {
		opts.ImageWorkers = 1
	}
	if opts.VideoWorkers < 1 {
		opts.VideoWorkers = 1
	}
	return &Executor{
		opts:     opts,
		services: services,
		log:      log.With().Str("component", "executor").Logger(),
		onEvent:  onEvent,
	}
}

// Execute runs every action of plan and returns the statistics. Every
// action settles exactly once.
//
// Cancelling ctx stops dispatching: actions not yet started are skipped
// with reason cancelled, while actions already running finish on a context
// detached from ctx.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan) *RunStatistics {
	if e.opts.DryRun {
		return e.dryRun(plan)
	}

	r := newRun(e, ctx, plan)
	r.start()
	r.stats.finish(ctx.Err() != nil)

	e.log.Info().
		Int("actions", len(plan.Actions)).
		Int("failed", r.stats.Total(model.StatusFailed)).
		Int("skipped", r.stats.Total(model.StatusSkipped)).
		Dur("took", r.stats.Duration).
		Msg("run finished")
	return r.stats
}

// dryRun settles every action as succeeded without doing any work and
// emits its description.
func (e *Executor) dryRun(plan *planner.Plan) *RunStatistics {
	stats := newRunStatistics(plan, true)
	for i, a := range plan.Actions {
		o := model.Succeeded(a.Output)
		stats.record(a, o, 0)

		desc := plan.Describe(i)
		e.emit(Event{
			Type:        EventPlanned,
			ActionID:    a.ID,
			Stage:       a.Stage(),
			Kind:        a.Kind,
			Identity:    a.Identity,
			Outcome:     o,
			Description: desc,
			Message:     desc,
			Level:       LevelInfo,
			Settled:     i + 1,
			Total:       len(plan.Actions),
		})
	}
	stats.finish(false)
	return stats
}

func (e *Executor) emit(ev Event) {
	if e.onEvent == nil {
		return
	}
	e.eventMu.Lock()
	defer e.eventMu.Unlock()
	e.onEvent(ev)
}

func (e *Executor) waitForRetry(ctx context.Context, tries int) {
	cooldown := e.opts.RetryCooldown * math.Pow(e.opts.RetryExponent, float64(tries))
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(cooldown * float64(time.Second))):
	}
}

// run is the scheduler state of one Execute call.
type run struct {
	e     *Executor
	plan  *planner.Plan
	stats *RunStatistics

	// ctx is watched for cancellation; work is what actions run with.
	ctx  context.Context
	work context.Context

	dependents [][]int

	mu        sync.Mutex
	waiting   []int
	blocked   []bool
	settled   int
	inspected map[int]*pairing.Result // deferred combine ID -> paired contents

	queues   [poolCount]chan *planner.Action
	finished chan struct{}
}

func newRun(e *Executor, ctx context.Context, plan *planner.Plan) *run {
	r := &run{
		e:          e,
		plan:       plan,
		stats:      newRunStatistics(plan, false),
		ctx:        ctx,
		work:       context.WithoutCancel(ctx),
		dependents: plan.Dependents(),
		waiting:    make([]int, len(plan.Actions)),
		blocked:    make([]bool, len(plan.Actions)),
		inspected:  make(map[int]*pairing.Result),
		finished:   make(chan struct{}),
	}
	for i, a := range plan.Actions {
		r.waiting[i] = len(a.DependsOn)
	}
	for i := range r.queues {
		r.queues[i] = make(chan *planner.Action, len(plan.Actions))
	}
	return r
}

// start feeds each pool from its queue until every action has settled.
func (r *run) start() {
	limits := [poolCount]int{
		poolDownload: r.e.opts.DownloadWorkers,
		poolImage:    r.e.opts.ImageWorkers,
		poolVideo:    r.e.opts.VideoWorkers,
	}

	var groups [poolCount]*errgroup.Group
	var feeders sync.WaitGroup
	for i := range groups {
		g := &errgroup.Group{}
		g.SetLimit(limits[i])
		groups[i] = g

		queue := r.queues[i]
		feeders.Add(1)
		go func() {
			defer feeders.Done()
			for a := range queue {
				g.Go(func() error {
					r.runAction(a)
					return nil
				})
			}
		}()
	}

	var roots []*planner.Action
	for _, a := range r.plan.Actions {
		if len(a.DependsOn) == 0 {
			roots = append(roots, a)
		}
	}
	if len(r.plan.Actions) == 0 {
		close(r.finished)
	}
	for _, a := range roots {
		r.dispatch(a)
	}

	<-r.finished
	for _, q := range r.queues {
		close(q)
	}
	feeders.Wait()
	for _, g := range groups {
		_ = g.Wait()
	}
}

// dispatch runs, queues or skips an action whose dependencies have all
// settled.
func (r *run) dispatch(a *planner.Action) {
	r.mu.Lock()
	blocked := r.blocked[a.ID]
	r.mu.Unlock()

	switch {
	case r.ctx.Err() != nil:
		r.settle(a, model.Skipped(model.ReasonCancelled), 0)
	case blocked:
		r.settle(a, model.Skipped(model.ReasonDependencyFailed), 0)
	case inline(a.Kind):
		r.execute(a)
	default:
		r.queues[r.poolOf(a)] <- a
	}
}

// poolOf picks the pool for a queued action. A deferred combine goes by
// what its download turned out to hold, so a video pair labelled as an
// image in the manifest still runs on the video pool.
func (r *run) poolOf(a *planner.Action) pool {
	if !a.Deferred {
		return poolFor(a.Kind)
	}
	res, err := r.inspect(a)
	if err == nil && len(res.Pairs) > 0 && res.Pairs[0].Main.Kind == model.KindVideo {
		return poolVideo
	}
	return poolImage
}

func (r *run) runAction(a *planner.Action) {
	if r.ctx.Err() != nil {
		r.settle(a, model.Skipped(model.ReasonCancelled), 0)
		return
	}
	r.execute(a)
}

func (r *run) execute(a *planner.Action) {
	r.e.emit(Event{
		Type:     EventStarted,
		ActionID: a.ID,
		Stage:    a.Stage(),
		Kind:     a.Kind,
		Identity: a.Identity,
		Message:  fmt.Sprintf("%s %s", a.Kind, a.Identity),
		Level:    LevelVerbose,
		Total:    len(r.plan.Actions),
	})

	o, bytes := r.perform(r.work, a)

	log := r.e.log.With().Int("action", a.ID).Str("kind", a.Kind.String()).Str("identity", a.Identity).Logger()
	switch o.Status {
	case model.StatusFailed:
		log.Warn().Err(o.Err).Str("error_kind", o.ErrKind.String()).Msg("action failed")
	case model.StatusSkipped:
		log.Debug().Str("reason", o.Reason).Str("detail", o.Detail).Msg("action skipped")
	default:
		log.Debug().Str("output", o.Output).Str("detail", o.Detail).Msg("action succeeded")
	}

	r.settle(a, o, bytes)
}

// settle records the outcome of a and dispatches dependents that became
// ready.
func (r *run) settle(a *planner.Action, o model.Outcome, bytes int64) {
	r.stats.record(a, o, bytes)

	r.mu.Lock()
	r.settled++
	settled := r.settled
	var ready []*planner.Action
	for _, id := range r.dependents[a.ID] {
		if o.Failing() {
			r.blocked[id] = true
		}
		r.waiting[id]--
		if r.waiting[id] == 0 {
			ready = append(ready, r.plan.Actions[id])
		}
	}
	r.mu.Unlock()

	r.e.emit(Event{
		Type:     EventSettled,
		ActionID: a.ID,
		Stage:    a.Stage(),
		Kind:     a.Kind,
		Identity: a.Identity,
		Outcome:  o,
		Message:  settledMessage(a, o),
		Level:    levelOf(o),
		Settled:  settled,
		Total:    len(r.plan.Actions),
	})

	if settled == len(r.plan.Actions) {
		close(r.finished)
		return
	}
	for _, next := range ready {
		r.dispatch(next)
	}
}

// resolve returns the path a Source refers to once its producer has run.
func (r *run) resolve(src planner.Source) string {
	if !src.IsOutput() {
		return src.Path
	}
	if out := r.stats.outcome(src.From).Output; out != "" {
		return out
	}
	return src.Path
}

func settledMessage(a *planner.Action, o model.Outcome) string {
	subject := a.Identity
	if subject == "" {
		subject = a.Output
	}
	switch o.Status {
	case model.StatusFailed:
		return fmt.Sprintf("%s %s failed: %v", a.Kind, subject, o.Err)
	case model.StatusSkipped:
		return fmt.Sprintf("%s %s skipped: %s", a.Kind, subject, o.Reason)
	default:
		return fmt.Sprintf("%s %s done", a.Kind, subject)
	}
}
