// Package scan discovers raw assets in an export folder or a manifest.
//
// The scanner classifies every file by content, never by name alone, and
// records unreadable or unsupported entries as skips instead of failing the
// scan. Zip archives are listed, not extracted.
package scan

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	ioutils "github.com/handiism/snap-memories/internal/io"
	"github.com/handiism/snap-memories/internal/model"
	"github.com/rs/zerolog"
)

// Result is the output of a scan.
type Result struct {
	// Assets in discovery order. Zip archives appear before their members.
	Assets []*model.RawAsset

	// Skipped lists entries that were excluded, with the reason.
	Skipped []model.Skip
}

// Counts summarizes a scan for the report.
type Counts struct {
	Archives         int
	Images           int
	Videos           int
	Overlays         int
	MissingExtension int
	Remote           int
}

// Counts tallies the assets of r by kind and role.
func (r *Result) Counts() Counts {
	var c Counts
	for _, a := range r.Assets {
		switch {
		case a.Role == model.RoleArchive && isRemote(a.Location):
			c.Remote++
		case a.Role == model.RoleArchive:
			c.Archives++
		case a.Role == model.RoleOverlay:
			c.Overlays++
		case a.Kind == model.KindVideo:
			c.Videos++
		case a.Kind == model.KindImage:
			c.Images++
		}
		if a.NeedsExtension {
			c.MissingExtension++
		}
	}
	return c
}

// Scanner discovers assets.
type Scanner struct {
	log zerolog.Logger

	// ignore holds base names that are never treated as assets, such as the
	// manifest files of the export.
	ignore map[string]bool
}

// New creates a Scanner. Files whose base name is in ignore (case-insensitive)
// are passed over silently.
func New(log zerolog.Logger, ignore ...string) *Scanner {
	s := &Scanner{
		log:    log.With().Str("component", "scan").Logger(),
		ignore: make(map[string]bool, len(ignore)),
	}
	for _, name := range ignore {
		s.ignore[strings.ToLower(name)] = true
	}
	return s
}

// Folder scans the top level of dir.
//
// Subdirectories (including output and work directories placed inside the
// input folder) and hidden files are ignored, as are prior composite
// outputs ("*_combined.*"). Zip archives are recognised by content and
// their members listed as assets scoped to the archive.
//
// Only a failure to list dir itself is returned as an error.
func (s *Scanner) Folder(dir string) (*Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || s.ignore[strings.ToLower(name)] {
			continue
		}
		if model.IsCombinedOutput(name) {
			s.log.Debug().Str("file", name).Msg("ignoring prior output")
			continue
		}

		s.scanFile(res, filepath.Join(dir, name))
	}

	return res, nil
}

// Tree scans dir recursively as one loose scope. It is used on the
// normalized contents of a single downloaded memory.
func (s *Scanner) Tree(dir string) (*Result, error) {
	res := &Result{}
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			res.Skipped = append(res.Skipped, model.Skip{Path: p, Reason: model.ReasonUnreadable, Detail: err.Error()})
			return nil
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		s.scanFile(res, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Manifest turns manifest records into remote assets. Records without a
// download link are skipped.
func (s *Scanner) Manifest(records []*model.MemoryRecord) *Result {
	res := &Result{}
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		if rec.SourceURL == "" {
			res.Skipped = append(res.Skipped, model.Skip{Identity: rec.Identity, Reason: model.ReasonNoDownloadLink})
			continue
		}
		if seen[rec.Identity] {
			res.Skipped = append(res.Skipped, model.Skip{Identity: rec.Identity, Path: rec.SourceURL, Reason: model.ReasonAmbiguousPair, Detail: "duplicate manifest entry"})
			continue
		}
		seen[rec.Identity] = true

		res.Assets = append(res.Assets, &model.RawAsset{
			Identity: rec.Identity,
			Role:     model.RoleArchive,
			Kind:     rec.Kind,
			Name:     rec.Identity,
			Location: rec.SourceURL,
		})
	}

	return res
}

func (s *Scanner) scanFile(res *Result, p string) {
	format, err := ioutils.SniffFile(p)
	if err != nil {
		s.log.Warn().Str("file", p).Err(err).Msg("unreadable file")
		res.Skipped = append(res.Skipped, model.Skip{Path: p, Reason: model.ReasonUnreadable, Detail: err.Error()})
		return
	}

	var size int64
	if info, err := os.Stat(p); err == nil {
		size = info.Size()
	}

	if format.IsZip() {
		s.scanArchive(res, p, size)
		return
	}

	if asset, skip := classify(filepath.Base(p), format); skip != nil {
		skip.Path = p
		res.Skipped = append(res.Skipped, *skip)
	} else {
		asset.Location = p
		asset.Size = size
		res.Assets = append(res.Assets, asset)
	}
}

func (s *Scanner) scanArchive(res *Result, p string, size int64) {
	entries, err := ioutils.ListZip(p)
	if err != nil {
		s.log.Warn().Str("archive", p).Err(err).Msg("unreadable archive")
		res.Skipped = append(res.Skipped, model.Skip{Path: p, Reason: model.ReasonUnreadable, Detail: err.Error()})
		return
	}

	identity, _ := model.ParseName(filepath.Base(p))
	res.Assets = append(res.Assets, &model.RawAsset{
		Identity: identity,
		Role:     model.RoleArchive,
		Name:     filepath.Base(p),
		Location: p,
		Ext:      ioutils.FormatZip.Ext,
		Size:     size,
	})

	for _, entry := range entries {
		base := entry.BaseName()
		if model.IsCombinedOutput(base) {
			continue
		}

		asset, skip := classify(base, entry.Format)
		if skip != nil {
			skip.Path = p + "!" + entry.Name
			res.Skipped = append(res.Skipped, *skip)
			continue
		}
		asset.Location = p
		asset.Archive = p
		asset.Member = entry.Name
		asset.Size = entry.Size
		res.Assets = append(res.Assets, asset)
	}
}

// classify builds the asset for a file or archive member named name with
// sniffed content format.
func classify(name string, format ioutils.Format) (*model.RawAsset, *model.Skip) {
	identity, role := model.ParseName(name)

	kind := model.KindFromExt(format.Ext)
	if kind == model.KindUnknown {
		return nil, &model.Skip{Identity: identity, Reason: model.ReasonUnsupported, Detail: "unrecognised content"}
	}

	return &model.RawAsset{
		Identity:       identity,
		Role:           role,
		Kind:           kind,
		Name:           name,
		Ext:            format.Ext,
		NeedsExtension: model.Ext(name) == "",
	}, nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// MemberPath returns where an archive member lands when its archive is
// extracted into dir. Listed members always have a safe path.
func MemberPath(dir string, member string) string {
	dest, err := ioutils.MemberDest(dir, member)
	if err != nil {
		return filepath.Join(dir, path.Base(member))
	}
	return dest
}
