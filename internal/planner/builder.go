package planner

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/handiism/snap-memories/internal/capability"
	"github.com/handiism/snap-memories/internal/model"
	"github.com/handiism/snap-memories/internal/pairing"
	"github.com/handiism/snap-memories/internal/scan"
)

// Work directory layout.
const (
	DownloadsDir = "downloads"
	ExtractDir   = "extract"
	RenamedDir   = "renamed"
)

// Input is everything Build needs. Build performs no I/O, so the same Input
// always yields the same Plan.
type Input struct {
	// Assets is the full scan result, including archives and remote items.
	Assets []*model.RawAsset

	// Pairing is the pairing result for the non-archive assets.
	Pairing *pairing.Result

	// Skipped carries scan skips into the plan.
	Skipped []model.Skip

	// Inputs is copied into the plan for the report.
	Inputs scan.Counts

	Records      model.RecordIndex
	Capabilities capability.Set

	OutputDir string
	WorkDir   string

	// RemoveConsumedArchives deletes input zip archives once everything
	// extracted from them has been processed.
	RemoveConsumedArchives bool
}

type builder struct {
	in      Input
	actions []*Action

	extracts map[string]*Action // archive path -> extract action
	renames  map[*model.RawAsset]*Action
	users    map[string][]*Action // archive path -> actions reading its files
	names    map[string]int
	staged   map[string]int // lower-cased work paths already taken
}

// Build turns scan and pairing results into an ordered plan.
//
// Stages run download, extract, rename, combine/copy, metadata, cleanup.
// Every finalized output gets an ApplyMetadata action (with a nil record
// when the identity has no manifest entry). Each archive or download gets a
// cleanup that waits for all its consumers, and a final cleanup of the work
// directory waits for everything.
func Build(in Input) *Plan {
	b := &builder{
		in:       in,
		extracts: make(map[string]*Action),
		renames:  make(map[*model.RawAsset]*Action),
		users:    make(map[string][]*Action),
		names:    make(map[string]int),
		staged:   make(map[string]int),
	}

	var archives []string
	for _, a := range in.Assets {
		if a.Role != model.RoleArchive {
			continue
		}
		if isRemote(a.Location) {
			b.planRemote(a)
			continue
		}
		b.extract(a.Location)
		archives = append(archives, a.Location)
	}

	if in.Pairing != nil {
		for _, p := range in.Pairing.Pairs {
			b.planPair(p)
		}
		for _, a := range in.Pairing.Standalone {
			b.planStandalone(a)
		}
	}

	for _, archive := range archives {
		b.planArchiveCleanup(archive)
	}

	if len(b.extracts) > 0 || len(b.staged) > 0 {
		b.add(&Action{
			Kind:    ActionCleanup,
			Targets: []Source{Literal(in.WorkDir)},
			deps:    append([]*Action(nil), b.actions...),
		})
	}

	plan := &Plan{
		Capabilities: in.Capabilities.Clone(),
		OutputDir:    in.OutputDir,
		WorkDir:      in.WorkDir,
		Inputs:       in.Inputs,
	}
	plan.Skipped = append(plan.Skipped, in.Skipped...)
	if in.Pairing != nil {
		plan.Skipped = append(plan.Skipped, in.Pairing.Skipped...)
	}
	plan.Actions = b.finalize()
	return plan
}

// planRemote plans download -> normalize -> combine -> metadata -> cleanup
// for a manifest item.
func (b *builder) planRemote(a *model.RawAsset) {
	rec := b.in.Records.Lookup(a.Identity)
	safe := model.SafeName(a.Identity)

	dl := b.add(&Action{
		Kind:     ActionDownload,
		Identity: a.Identity,
		Archive:  a.Location,
		URL:      a.Location,
		Output:   filepath.Join(b.in.WorkDir, DownloadsDir, safe),
		Record:   rec,
	})

	ex := b.add(&Action{
		Kind:     ActionExtractArchive,
		Identity: a.Identity,
		Archive:  a.Location,
		Output:   filepath.Join(b.in.WorkDir, ExtractDir, safe),
		main:     dl,
		deps:     []*Action{dl},
	})
	b.extracts[a.Location] = ex

	kind := a.Kind
	if rec != nil && rec.Kind != model.KindUnknown {
		kind = rec.Kind
	}
	combineKind := ActionCombineImage
	if kind == model.KindVideo {
		combineKind = ActionCombineVideo
	}

	stem := b.reserve(safe)
	b.reserveExact(stem + model.CombinedSuffix)
	cb := b.add(&Action{
		Kind:         combineKind,
		Identity:     a.Identity,
		Archive:      a.Location,
		Output:       filepath.Join(b.in.OutputDir, stem),
		MediaKind:    kind,
		Capabilities: b.in.Capabilities.Clone(),
		Deferred:     true,
		Record:       rec,
		main:         ex,
		deps:         []*Action{ex},
	})

	b.planMetadata(cb, a.Identity)

	b.add(&Action{
		Kind:     ActionCleanup,
		Identity: a.Identity,
		Archive:  a.Location,
		tgts:     []*Action{ex, dl},
		deps:     []*Action{cb},
	})
}

func (b *builder) planPair(p *model.Pair) {
	main, mainDeps := b.source(p.Main)
	overlay, overlayDeps := b.source(p.Overlay)

	kind := ActionCombineImage
	ext := ".jpg"
	if p.Main.Kind == model.KindVideo {
		kind = ActionCombineVideo
		ext = ".mp4"
	}

	act := &Action{
		Kind:      kind,
		Identity:  p.Identity,
		Archive:   p.Main.Scope(),
		Main:      main.src,
		Overlay:   overlay.src,
		Output:    filepath.Join(b.in.OutputDir, b.reserve(model.SafeName(p.Identity)+model.CombinedSuffix)+ext),
		MediaKind: p.Main.Kind,
		Record:    b.in.Records.Lookup(p.Identity),
		main:      main.from,
		ovl:       overlay.from,
		deps:      append(mainDeps, overlayDeps...),
	}
	if kind == ActionCombineVideo {
		act.Capabilities = b.in.Capabilities.Clone()
	}
	b.add(act)
	b.use(p.Main.Scope(), act)

	b.planMetadata(act, p.Identity)
}

func (b *builder) planStandalone(a *model.RawAsset) {
	main, deps := b.source(a)

	act := b.add(&Action{
		Kind:      ActionCopyThrough,
		Identity:  a.Identity,
		Archive:   a.Scope(),
		Main:      main.src,
		Output:    filepath.Join(b.in.OutputDir, b.reserve(model.SafeName(a.Identity))+a.Ext),
		MediaKind: a.Kind,
		Record:    b.in.Records.Lookup(a.Identity),
		main:      main.from,
		deps:      deps,
	})
	b.use(a.Scope(), act)

	b.planMetadata(act, a.Identity)
}

func (b *builder) planMetadata(producer *Action, identity string) {
	b.add(&Action{
		Kind:      ActionApplyMetadata,
		Identity:  identity,
		Archive:   producer.Archive,
		Output:    producer.Output,
		MediaKind: producer.MediaKind,
		Record:    b.in.Records.Lookup(identity),
		main:      producer,
		deps:      []*Action{producer},
	})
}

func (b *builder) planArchiveCleanup(archive string) {
	ex := b.extracts[archive]
	targets := []Source{Literal(ex.Output)}
	if b.in.RemoveConsumedArchives {
		targets = append(targets, Literal(archive))
	}

	deps := append([]*Action{ex}, b.users[archive]...)
	b.add(&Action{
		Kind:    ActionCleanup,
		Archive: archive,
		Targets: targets,
		deps:    deps,
	})
}

type resolved struct {
	src  Source
	from *Action
}

// source returns where an asset's bytes will be when its consumer runs,
// planning the extract and rename steps it needs on the way.
func (b *builder) source(a *model.RawAsset) (resolved, []*Action) {
	var (
		r    resolved
		deps []*Action
	)

	if a.IsArchiveMember() {
		ex := b.extract(a.Archive)
		r = resolved{src: Literal(scan.MemberPath(ex.Output, a.Member))}
		deps = append(deps, ex)
	} else {
		r = resolved{src: Literal(a.Location)}
	}

	if a.NeedsExtension {
		rn, ok := b.renames[a]
		if !ok {
			// Extracted members are ours to rename. Loose inputs are
			// copied into the work directory so the input folder stays
			// untouched.
			output, keep := r.src.Path+a.Ext, false
			if !a.IsArchiveMember() {
				output, keep = b.stage(RenamedDir, filepath.Base(a.Location)+a.Ext), true
			}
			rn = b.add(&Action{
				Kind:      ActionRenameMissingExtension,
				Identity:  a.Identity,
				Archive:   a.Scope(),
				Main:      r.src,
				Output:    output,
				KeepInput: keep,
				MediaKind: a.Kind,
				deps:      deps,
			})
			b.renames[a] = rn
			b.use(a.Scope(), rn)
		}
		r = resolved{src: Source{Path: rn.Output}, from: rn}
		deps = []*Action{rn}
	}

	return r, deps
}

// extract returns the extract action for a local archive, planning it on
// first use.
func (b *builder) extract(archive string) *Action {
	if ex, ok := b.extracts[archive]; ok {
		return ex
	}
	ex := b.add(&Action{
		Kind:    ActionExtractArchive,
		Archive: archive,
		Main:    Literal(archive),
		Output:  filepath.Join(b.in.WorkDir, ExtractDir, model.SafeName(filepath.Base(archive))),
	})
	b.extracts[archive] = ex
	return ex
}

func (b *builder) use(archive string, act *Action) {
	if archive != "" {
		b.users[archive] = append(b.users[archive], act)
	}
}

func (b *builder) add(a *Action) *Action {
	b.actions = append(b.actions, a)
	return a
}

// reserve returns a unique output stem based on stem. Comparison ignores
// case so outputs don't collide on case-insensitive file systems.
func (b *builder) reserve(stem string) string {
	key := strings.ToLower(stem)
	n := b.names[key]
	b.names[key] = n + 1
	if n == 0 {
		return stem
	}
	candidate := fmt.Sprintf("%s-%d", stem, n+1)
	for b.names[strings.ToLower(candidate)] > 0 {
		n++
		candidate = fmt.Sprintf("%s-%d", stem, n+1)
	}
	b.names[strings.ToLower(candidate)] = 1
	return candidate
}

// stage returns a unique path for name under dir in the work directory.
func (b *builder) stage(dir, name string) string {
	candidate := name
	for n := 1; b.staged[strings.ToLower(filepath.Join(dir, candidate))] > 0; n++ {
		candidate = fmt.Sprintf("%d-%s", n, name)
	}
	b.staged[strings.ToLower(filepath.Join(dir, candidate))]++
	return filepath.Join(b.in.WorkDir, dir, candidate)
}

// reserveExact claims stem without renaming, for outputs whose final name is
// only chosen at run time.
func (b *builder) reserveExact(stem string) {
	b.names[strings.ToLower(stem)]++
}

// finalize orders actions by stage, assigns IDs and resolves references.
func (b *builder) finalize() []*Action {
	actions := append([]*Action(nil), b.actions...)
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Stage() < actions[j].Stage()
	})

	for i, a := range actions {
		a.ID = i
	}

	for _, a := range actions {
		a.Main = resolveSource(a.Main, a.main)
		a.Overlay = resolveSource(a.Overlay, a.ovl)
		for _, t := range a.tgts {
			a.Targets = append(a.Targets, Source{Path: t.Output, From: t.ID})
		}

		seen := make(map[int]bool, len(a.deps))
		for _, d := range a.deps {
			if !seen[d.ID] {
				seen[d.ID] = true
				a.DependsOn = append(a.DependsOn, d.ID)
			}
		}
		sort.Ints(a.DependsOn)

		a.deps, a.main, a.ovl, a.tgts = nil, nil, nil, nil
	}

	return actions
}

func resolveSource(s Source, from *Action) Source {
	if from == nil {
		return Source{Path: s.Path, From: NoAction}
	}
	return Source{Path: from.Output, From: from.ID}
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
