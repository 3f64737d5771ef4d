package metadata

import (
	"fmt"
	"math"
	"time"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"

	"github.com/handiism/snap-memories/internal/model"
)

const exifDateLayout = "2006:01:02 15:04:05"

// Paths of the sub-IFDs BuildEXIF fills in.
const (
	ifdPathExif = "IFD/Exif"
	ifdPathGPS  = "IFD/GPSInfo"
)

type tagValue struct {
	name  string
	value any
}

// BuildEXIF returns a root IFD holding the capture time (as UTC, with a
// +00:00 offset) and, when loc is non-nil, GPS coordinates. The builder is
// handed to InjectJPEG or InjectPNG.
func BuildEXIF(created time.Time, loc *model.GeoPoint) (*exif.IfdBuilder, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("exif: ifd mapping: %w", err)
	}
	ti := exif.NewTagIndex()
	root := exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)

	stamp := created.UTC().Format(exifDateLayout)
	if err := root.AddStandardWithName("DateTime", stamp); err != nil {
		return nil, fmt.Errorf("exif: DateTime: %w", err)
	}

	if err := addTags(root, ifdPathExif, []tagValue{
		{"DateTimeOriginal", stamp},
		{"DateTimeDigitized", stamp},
	}); err != nil {
		return nil, err
	}

	exifIb, err := exif.GetOrCreateIbFromRootIb(root, ifdPathExif)
	if err != nil {
		return nil, fmt.Errorf("exif: %s: %w", ifdPathExif, err)
	}
	// Readers fall back to local time without it; the stamps are UTC.
	_ = exifIb.AddStandardWithName("OffsetTimeOriginal", "+00:00")

	if loc == nil {
		return root, nil
	}

	latRef, lonRef := "N", "E"
	if loc.Latitude < 0 {
		latRef = "S"
	}
	if loc.Longitude < 0 {
		lonRef = "W"
	}
	if err := addTags(root, ifdPathGPS, []tagValue{
		{"GPSVersionID", []uint8{2, 3, 0, 0}},
		{"GPSLatitudeRef", latRef},
		{"GPSLatitude", dmsRationals(loc.Latitude)},
		{"GPSLongitudeRef", lonRef},
		{"GPSLongitude", dmsRationals(loc.Longitude)},
	}); err != nil {
		return nil, err
	}

	return root, nil
}

func addTags(root *exif.IfdBuilder, ifdPath string, tags []tagValue) error {
	ib, err := exif.GetOrCreateIbFromRootIb(root, ifdPath)
	if err != nil {
		return fmt.Errorf("exif: %s: %w", ifdPath, err)
	}
	for _, t := range tags {
		if err := ib.AddStandardWithName(t.name, t.value); err != nil {
			return fmt.Errorf("exif: %s: %w", t.name, err)
		}
	}
	return nil
}

// dmsRationals encodes the absolute value of deg as degrees, minutes and
// seconds, seconds to 1/10000.
func dmsRationals(deg float64) []exifcommon.Rational {
	d, m, s := toDMS(deg)
	return []exifcommon.Rational{
		{Numerator: d, Denominator: 1},
		{Numerator: m, Denominator: 1},
		{Numerator: s, Denominator: 10000},
	}
}

// toDMS returns whole degrees, whole minutes and seconds*10000.
func toDMS(deg float64) (uint32, uint32, uint32) {
	abs := math.Abs(deg)
	d := math.Floor(abs)
	minutes := (abs - d) * 60
	m := math.Floor(minutes)
	s := math.Round((minutes - m) * 60 * 10000)

	if s >= 60*10000 {
		s -= 60 * 10000
		m++
	}
	if m >= 60 {
		m -= 60
		d++
	}
	return uint32(d), uint32(m), uint32(s)
}
