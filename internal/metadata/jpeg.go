package metadata

import (
	"bytes"
	"errors"
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
)

// ErrMalformed is returned when a file's structure can't be walked.
var ErrMalformed = errors.New("malformed file structure")

// InjectJPEG returns a copy of a JPEG stream whose EXIF segment is replaced
// by ib. A stream without EXIF gets a new APP1 segment right after SOI.
func InjectJPEG(data []byte, ib *exif.IfdBuilder) ([]byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, fmt.Errorf("jpeg: %w: missing SOI", ErrMalformed)
	}

	parsed, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("jpeg: %w: %v", ErrMalformed, err)
	}
	sl, ok := parsed.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("jpeg: %w: unexpected parse result %T", ErrMalformed, parsed)
	}

	if err := sl.SetExif(ib); err != nil {
		return nil, fmt.Errorf("jpeg: set exif: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + 512)
	if err := sl.Write(&buf); err != nil {
		return nil, fmt.Errorf("jpeg: write: %w", err)
	}
	return buf.Bytes(), nil
}
