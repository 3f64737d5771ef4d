package ioutils

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // GIF decoder registration
	"image/jpeg"
	_ "image/png" // PNG decoder registration
	"io"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder registration
)

// DefaultJPEGQuality is used when a quality outside 1..100 is requested.
const DefaultJPEGQuality = 95

// ImageService composites overlays onto photos.
//
// ImageService is used to:
//   - Decode main photos and overlay PNGs (JPEG, PNG, GIF and WebP)
//   - Scale an overlay to the size of its main photo
//   - Alpha-blend the overlay and encode the result as JPEG
//
// Example usage:
//
//	svc := NewImageService(95)
//	main, _ := svc.DecodeFile("abc-main.jpg")
//	overlay, _ := svc.DecodeFile("abc-overlay.png")
//	err := svc.EncodeJPEG(w, svc.Composite(main, overlay))
type ImageService struct {
	quality int
}

// NewImageService creates a new ImageService encoding JPEGs at quality.
func NewImageService(quality int) *ImageService {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &ImageService{quality: quality}
}

// Quality returns the JPEG quality used for encoding.
func (s *ImageService) Quality() int {
	return s.quality
}

// DecodeFile decodes the image at path.
func (s *ImageService) DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// DecodeConfig returns the dimensions and format of the image at path
// without decoding the pixel data.
func (s *ImageService) DecodeConfig(path string) (image.Config, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return image.Config{}, "", fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, format, nil
}

// Composite blends overlay over main and returns an opaque image the size
// of main.
//
// When the overlay's dimensions differ from main's it is scaled to match
// using Catmull-Rom, which is deterministic for identical inputs.
// Transparent areas show main; areas transparent in both come out white,
// since JPEG has no alpha channel.
//
// Example:
//
//	// A 540x960 overlay on a 1080x1920 photo is scaled up 2x first
//	out := svc.Composite(photo, overlay)
func (s *ImageService) Composite(main, overlay image.Image) *image.RGBA {
	bounds := main.Bounds()
	rect := image.Rect(0, 0, bounds.Dx(), bounds.Dy())

	dst := image.NewRGBA(rect)
	draw.Draw(dst, rect, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, rect, main, bounds.Min, draw.Over)

	ob := overlay.Bounds()
	if ob.Dx() == rect.Dx() && ob.Dy() == rect.Dy() {
		draw.Draw(dst, rect, overlay, ob.Min, draw.Over)
		return dst
	}

	// Scale with draw.Over so the overlay's alpha is respected.
	draw.CatmullRom.Scale(dst, rect, overlay, ob, draw.Over, nil)
	return dst
}

// EncodeJPEG writes img as a JPEG at the service's quality.
func (s *ImageService) EncodeJPEG(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: s.quality})
}
