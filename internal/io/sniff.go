package ioutils

import (
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// SniffLen is the number of leading bytes Sniff looks at. It matches the
// default read limit of mimetype.
const SniffLen = 3072

// Format is a file format recognised from content.
type Format struct {
	// Ext is the canonical extension, including the dot. Empty if unknown.
	Ext string

	// MIME is the media type.
	MIME string
}

// Known formats.
var (
	FormatJPEG = Format{Ext: ".jpg", MIME: "image/jpeg"}
	FormatPNG  = Format{Ext: ".png", MIME: "image/png"}
	FormatGIF  = Format{Ext: ".gif", MIME: "image/gif"}
	FormatWebP = Format{Ext: ".webp", MIME: "image/webp"}
	FormatHEIC = Format{Ext: ".heic", MIME: "image/heic"}
	FormatMP4  = Format{Ext: ".mp4", MIME: "video/mp4"}
	FormatMOV  = Format{Ext: ".mov", MIME: "video/quicktime"}
	FormatZip  = Format{Ext: ".zip", MIME: "application/zip"}
	FormatNone = Format{}
)

// formats maps detected media types onto Format. A type that is present
// with FormatNone stops the walk up to its parent, so AVIF and audio-only
// MP4 are not taken for video.
var formats = map[string]Format{
	"image/jpeg":          FormatJPEG,
	"image/png":           FormatPNG,
	"image/gif":           FormatGIF,
	"image/webp":          FormatWebP,
	"image/heic":          FormatHEIC,
	"image/heic-sequence": FormatHEIC,
	"image/heif":          FormatHEIC,
	"image/heif-sequence": FormatHEIC,
	"image/avif":          FormatNone,
	"audio/mp4":           FormatNone,
	"audio/x-m4a":         FormatNone,
	"video/mp4":           FormatMP4,
	"video/quicktime":     FormatMOV,
	"application/zip":     FormatZip,
}

// IsZero reports whether the format is unknown.
func (f Format) IsZero() bool {
	return f.Ext == ""
}

// IsZip reports whether f is a zip archive.
func (f Format) IsZip() bool {
	return f.Ext == FormatZip.Ext
}

// Sniff identifies the format of header, the first bytes of a file.
//
// Detection is done by mimetype. Specialised types without a Format of
// their own fall back to their parent, so a zip-based document is a zip and
// any unnamed ISO base media brand is MP4.
func Sniff(header []byte) Format {
	return fromMIME(mimetype.Detect(header))
}

// SniffReader reads up to SniffLen bytes from r and identifies the format.
func SniffReader(r io.Reader) (Format, error) {
	m, err := mimetype.DetectReader(r)
	if err != nil {
		return FormatNone, err
	}
	return fromMIME(m), nil
}

func fromMIME(m *mimetype.MIME) Format {
	for ; m != nil; m = m.Parent() {
		if f, ok := formats[m.String()]; ok {
			return f
		}
	}
	return FormatNone
}

// SniffFile identifies the format of the file at path.
func SniffFile(path string) (Format, error) {
	header, err := ReadHeader(path, SniffLen)
	if err != nil {
		return FormatNone, err
	}
	return Sniff(header), nil
}

// FormatFromContentType maps an HTTP Content-Type header to a format. It is
// only used when the content itself was not recognised.
func FormatFromContentType(contentType string) Format {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "zip"):
		return FormatZip
	case strings.Contains(ct, "jpeg") || strings.Contains(ct, "jpg"):
		return FormatJPEG
	case strings.Contains(ct, "png"):
		return FormatPNG
	case strings.Contains(ct, "quicktime"):
		return FormatMOV
	case strings.Contains(ct, "mp4") || strings.HasPrefix(ct, "video/"):
		return FormatMP4
	}
	return FormatNone
}
