package model

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Role describes what part an asset plays in a memory.
type Role int

const (
	// RoleStandalone is a file with no role suffix. It is copied through as-is.
	RoleStandalone Role = iota

	// RoleMain is the base photo or video of a memory ("<id>-main.<ext>").
	RoleMain

	// RoleOverlay is the transparent caption/sticker layer ("<id>-overlay.png").
	RoleOverlay

	// RoleArchive is a container that must be fetched or extracted before its
	// contents are known: a zip file, or a remote item from a manifest.
	RoleArchive
)

// String returns the lowercase role name.
func (r Role) String() string {
	switch r {
	case RoleMain:
		return "main"
	case RoleOverlay:
		return "overlay"
	case RoleArchive:
		return "archive"
	default:
		return "standalone"
	}
}

// Kind is the media kind of an asset, determined from its content.
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindVideo
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// KindFromExt maps a file extension (with or without the dot) to a Kind.
func KindFromExt(ext string) Kind {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg", "png", "gif", "webp", "heic", "heif":
		return KindImage
	case "mp4", "mov", "m4v":
		return KindVideo
	default:
		return KindUnknown
	}
}

// RawAsset is one discovered input file. It is never modified after the
// scanner creates it.
//
// Location is the path on disk for loose files and archives, and the
// download URL for manifest items. Members of a zip archive share the
// archive's path as both Location and Archive, and carry their entry name
// in Member.
type RawAsset struct {
	// Identity is the normalized memory identifier shared by main and overlay.
	Identity string

	Role Role
	Kind Kind

	// Name is the base file name as found (member name for archive entries).
	Name string

	Location string

	// Archive is the archive scope. Empty for loose files.
	Archive string

	// Member is the entry name inside Archive.
	Member string

	// Ext is the extension matching the sniffed content, including the dot.
	Ext string

	// Size is the size in bytes when known, zero otherwise.
	Size int64

	// NeedsExtension is set for files found without an extension. They get
	// Ext appended before any other processing.
	NeedsExtension bool
}

// IsArchiveMember reports whether the asset lives inside a zip archive.
func (a *RawAsset) IsArchiveMember() bool {
	return a.Archive != "" && a.Member != ""
}

// Scope returns the pairing scope of the asset. Assets only pair with
// assets of the same scope.
func (a *RawAsset) Scope() string {
	return a.Archive
}

// Pair is a main asset together with its overlay. Both sides are always set.
type Pair struct {
	Identity string
	Main     *RawAsset
	Overlay  *RawAsset
}

// CombinedSuffix marks outputs produced by compositing an overlay onto a main.
const CombinedSuffix = "_combined"

var roleSuffix = regexp.MustCompile(`(?i)-(main|overlay)$`)

// ParseName derives the identity and role of a file from its base name.
//
// The extension and a trailing "-main" or "-overlay" suffix (any case) are
// removed; the rest is normalized with NormalizeIdentity.
//
// Example:
//
//	ParseName("abc-overlay.png") // "abc", RoleOverlay
//	ParseName("abc.mp4")         // "abc", RoleStandalone
func ParseName(name string) (string, Role) {
	stem := strings.TrimSuffix(name, Ext(name))

	role := RoleStandalone
	if m := roleSuffix.FindStringSubmatch(stem); m != nil {
		if strings.EqualFold(m[1], "main") {
			role = RoleMain
		} else {
			role = RoleOverlay
		}
		stem = stem[:len(stem)-len(m[0])]
	}

	return NormalizeIdentity(stem), role
}

// NormalizeIdentity returns the canonical form of an identity: Unicode NFC
// with surrounding space trimmed, and lowercase hyphenated form when the
// identity is a UUID.
func NormalizeIdentity(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	if len(s) == 36 {
		if id, err := uuid.Parse(s); err == nil {
			return id.String()
		}
	}
	return s
}

// Ext returns the extension of a file name, including the dot.
//
// Unlike filepath.Ext it ignores "extensions" that are really part of the
// name, such as ".01-main" in "2020.01-main".
func Ext(name string) string {
	ext := filepath.Ext(name)
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

// IsCombinedOutput reports whether name looks like a file this program
// produced by compositing.
func IsCombinedOutput(name string) bool {
	stem := strings.TrimSuffix(name, Ext(name))
	return strings.HasSuffix(strings.ToLower(stem), CombinedSuffix)
}

var invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SafeName makes an identity usable as a file name.
//
// Invalid characters (<>:"/\|?* and control chars) become underscores,
// and trailing dots and spaces are dropped.
func SafeName(identity string) string {
	name := invalidChars.ReplaceAllString(identity, "_")
	name = strings.TrimRight(name, ". ")
	if name == "" {
		return "_"
	}
	return name
}
