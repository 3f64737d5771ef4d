package model

import (
	"fmt"
	"time"
)

// GeoPoint is a WGS84 coordinate in decimal degrees.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// ISO6709 formats the point the way QuickTime location atoms expect it,
// e.g. "+48.85837+002.29448/".
func (p GeoPoint) ISO6709() string {
	return fmt.Sprintf("%+09.5f%+010.5f/", p.Latitude, p.Longitude)
}

// IsZero reports whether the point is the null island placeholder that
// exports use for "no location".
func (p GeoPoint) IsZero() bool {
	return p.Latitude == 0 && p.Longitude == 0
}

// MemoryRecord is one manifest entry describing a memory.
type MemoryRecord struct {
	// Identity is the normalized memory identifier.
	Identity string

	// Aliases are secondary identifiers that refer to the same memory.
	Aliases []string

	// CapturedAt is the capture time in UTC.
	CapturedAt time.Time

	// Location is nil when the manifest has no usable coordinates.
	Location *GeoPoint

	// SourceURL is where the memory can be downloaded from. May be empty.
	SourceURL string

	// Kind is the media kind the manifest claims.
	Kind Kind
}

// RecordIndex maps identities (and aliases) to records.
type RecordIndex map[string]*MemoryRecord

// IndexRecords builds a RecordIndex. When several records claim the same
// identity the first one wins.
func IndexRecords(records []*MemoryRecord) RecordIndex {
	idx := make(RecordIndex, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if _, ok := idx[rec.Identity]; !ok {
			idx[rec.Identity] = rec
		}
	}
	// Aliases never shadow a primary identity.
	for _, rec := range records {
		if rec == nil {
			continue
		}
		for _, alias := range rec.Aliases {
			if _, ok := idx[alias]; !ok {
				idx[alias] = rec
			}
		}
	}
	return idx
}

// Lookup returns the record for identity, or nil.
func (idx RecordIndex) Lookup(identity string) *MemoryRecord {
	if idx == nil {
		return nil
	}
	return idx[NormalizeIdentity(identity)]
}
