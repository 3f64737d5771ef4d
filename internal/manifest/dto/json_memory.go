package dto

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/handiism/snap-memories/internal/model"
)

var (
	midPattern      = regexp.MustCompile(`mid=([0-9a-fA-F-]{36})`)
	sidPattern      = regexp.MustCompile(`sid=([0-9a-fA-F-]{36})`)
	locationPattern = regexp.MustCompile(`Latitude, Longitude:\s*([\-\d\.]+),\s*([\-\d\.]+)`)
)

// dateFormats are the capture time layouts found in exports, all UTC.
var dateFormats = []string{
	"2006-01-02 15:04:05 UTC",
	"2006-01-02 15:04 UTC",
	time.RFC3339,
}

// SnapTime is a custom time type that handles the export's date format.
type SnapTime struct {
	time.Time
}

// UnmarshalJSON parses the export's date format: "2023-05-15 10:30:00 UTC"
func (st *SnapTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	if s == "" {
		st.Time = time.Time{}
		return nil
	}

	t, ok := ParseDate(s)
	if !ok {
		return fmt.Errorf("unable to parse date: %s", s)
	}
	st.Time = t
	return nil
}

// ParseDate parses a capture time in any of the export's layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseLocation extracts coordinates from a "Latitude, Longitude: a, b"
// string. It returns nil when there are none or they are the 0,0
// placeholder.
func ParseLocation(s string) *model.GeoPoint {
	m := locationPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return nil
	}
	p := &model.GeoPoint{Latitude: lat, Longitude: lon}
	if p.IsZero() || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil
	}
	return p
}

// MemoryIDs returns the mid and, when present and different, the sid found
// in s. Both are normalized.
func MemoryIDs(s string) (mid, sid string) {
	if m := midPattern.FindStringSubmatch(s); m != nil {
		mid = model.NormalizeIdentity(m[1])
	}
	if m := sidPattern.FindStringSubmatch(s); m != nil {
		sid = model.NormalizeIdentity(m[1])
	}
	if sid == mid {
		sid = ""
	}
	return mid, sid
}

// KindFromMediaType maps "Image"/"Video" to a kind. Anything else is an
// image, matching the export's own default.
func KindFromMediaType(s string) model.Kind {
	if strings.EqualFold(strings.TrimSpace(s), "video") {
		return model.KindVideo
	}
	return model.KindImage
}

// JSONHistory is the top level of memories_history.json.
type JSONHistory struct {
	SavedMedia []JSONMemory `json:"Saved Media"`
}

// JSONMemory is one saved memory.
type JSONMemory struct {
	Date             *SnapTime `json:"Date"`
	MediaType        string    `json:"Media Type"`
	Location         string    `json:"Location"`
	DownloadLink     string    `json:"Download Link"`
	MediaDownloadURL string    `json:"Media Download Url"`
}

// ToRecord converts the entry to a MemoryRecord. It returns false when the
// entry has no memory id or no capture time.
func (m *JSONMemory) ToRecord() (*model.MemoryRecord, bool) {
	link := m.MediaDownloadURL
	if link == "" {
		link = m.DownloadLink
	}

	mid, sid := MemoryIDs(link)
	if mid == "" {
		mid, sid = MemoryIDs(m.DownloadLink)
	}
	if mid == "" || m.Date == nil || m.Date.IsZero() {
		return nil, false
	}

	rec := &model.MemoryRecord{
		Identity:   mid,
		CapturedAt: m.Date.Time,
		Location:   ParseLocation(m.Location),
		SourceURL:  link,
		Kind:       KindFromMediaType(m.MediaType),
	}
	if sid != "" {
		rec.Aliases = []string{sid}
	}
	return rec, true
}
