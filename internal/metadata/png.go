package metadata

import (
	"bytes"
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
	pngstructure "github.com/dsoprea/go-png-image-structure/v2"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// InjectPNG returns a copy of a PNG stream carrying ib in an eXIf chunk.
// An existing eXIf chunk is replaced, otherwise the new one follows IHDR.
func InjectPNG(data []byte, ib *exif.IfdBuilder) ([]byte, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, fmt.Errorf("png: %w: bad signature", ErrMalformed)
	}

	parsed, err := pngstructure.NewPngMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("png: %w: %v", ErrMalformed, err)
	}
	cs, ok := parsed.(*pngstructure.ChunkSlice)
	if !ok {
		return nil, fmt.Errorf("png: %w: unexpected parse result %T", ErrMalformed, parsed)
	}

	if err := cs.SetExif(ib); err != nil {
		return nil, fmt.Errorf("png: set exif: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + 512)
	if err := cs.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("png: write: %w", err)
	}
	return buf.Bytes(), nil
}
