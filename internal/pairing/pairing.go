// Package pairing matches main assets with their overlays.
//
// A main and an overlay pair when they share an identity and a scope: the
// same zip archive, or both loose in the input folder. Pairs never cross
// scopes. When several overlays claim the same main, the first in scan order
// wins.
package pairing

import (
	"sort"

	"github.com/handiism/snap-memories/internal/model"
)

// Result is the output of Resolve.
type Result struct {
	// Pairs in scan order of their main asset.
	Pairs []*model.Pair

	// Standalone holds assets processed without an overlay, in scan order:
	// files with no role suffix, mains without an overlay and mains whose
	// overlay was incompatible.
	Standalone []*model.RawAsset

	// Skipped holds overlays and duplicate mains that were left out, in scan
	// order.
	Skipped []model.Skip
}

type key struct {
	scope    string
	identity string
}

type indexedSkip struct {
	index int
	skip  model.Skip
}

// Resolve pairs mains with overlays. Archive assets are ignored.
func Resolve(assets []*model.RawAsset) *Result {
	order := make(map[*model.RawAsset]int, len(assets))
	mains := make(map[key]*model.RawAsset)
	overlays := make(map[key][]*model.RawAsset)
	var skips []indexedSkip

	for i, a := range assets {
		order[a] = i
		k := key{scope: a.Scope(), identity: a.Identity}

		switch a.Role {
		case model.RoleMain:
			if _, dup := mains[k]; dup {
				skips = append(skips, indexedSkip{i, skipOf(a, model.ReasonAmbiguousPair, "duplicate main")})
				continue
			}
			mains[k] = a
		case model.RoleOverlay:
			overlays[k] = append(overlays[k], a)
		}
	}

	res := &Result{}
	for i, a := range assets {
		switch a.Role {
		case model.RoleStandalone:
			res.Standalone = append(res.Standalone, a)
		case model.RoleMain:
			k := key{scope: a.Scope(), identity: a.Identity}
			if mains[k] != a {
				continue
			}

			candidates := overlays[k]
			if len(candidates) == 0 {
				res.Standalone = append(res.Standalone, a)
				continue
			}

			chosen := candidates[0]
			for _, extra := range candidates[1:] {
				skips = append(skips, indexedSkip{order[extra], skipOf(extra, model.ReasonAmbiguousPair, "another overlay already paired")})
			}

			if chosen.Kind != model.KindImage {
				skips = append(skips, indexedSkip{order[chosen], skipOf(chosen, model.ReasonIncompatiblePair, "overlay is not an image")})
				res.Standalone = append(res.Standalone, a)
				continue
			}

			res.Pairs = append(res.Pairs, &model.Pair{Identity: a.Identity, Main: a, Overlay: chosen})
		case model.RoleOverlay:
			k := key{scope: a.Scope(), identity: a.Identity}
			if _, ok := mains[k]; !ok {
				skips = append(skips, indexedSkip{i, skipOf(a, model.ReasonOrphanOverlay, "")})
			}
		}
	}

	sort.SliceStable(skips, func(i, j int) bool { return skips[i].index < skips[j].index })
	for _, s := range skips {
		res.Skipped = append(res.Skipped, s.skip)
	}

	return res
}

func skipOf(a *model.RawAsset, reason, detail string) model.Skip {
	p := a.Location
	if a.Member != "" {
		p += "!" + a.Member
	}
	return model.Skip{Identity: a.Identity, Path: p, Reason: reason, Detail: detail}
}
