package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/handiism/snap-memories/internal/manifest/dto"
	"github.com/handiism/snap-memories/internal/model"
)

const (
	midA = "11111111-2222-3333-4444-555555555555"
	sidA = "AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE"
	midB = "99999999-8888-7777-6666-555555555555"
)

const mockHTML = `<html><body><table>
<tr><th>Date</th><th>Media Type</th><th>Location</th><th></th></tr>
<tr><td>2023-05-15 10:30:00 UTC</td><td>Image</td><td>Latitude, Longitude: 48.85837, 2.29448</td>
<td><a href="#" onclick="downloadMemories('https://app.example.com/dmd/memories?uid=x&amp;sid=` + sidA + `&amp;mid=` + midA + `&amp;ts=1', this, true); return false;">Download</a></td></tr>
<tr><td>2022-01-02 03:04 UTC</td><td>Video</td><td>Latitude, Longitude: 0.0, 0.0</td>
<td><a href="#" onclick="downloadMemories('https://app.example.com/dmd/memories?uid=x&amp;mid=` + midB + `', this, true);">Download</a></td></tr>
<tr><td>no date here</td><td>Image</td>
<td><a onclick="downloadMemories('https://app.example.com/dmd/memories?mid=00000000-0000-0000-0000-000000000001', this);">Download</a></td></tr>
</table></body></html>`

func TestParser_ParseHTML(t *testing.T) {
	records, err := NewParser(zerolog.Nop()).ParseHTML(mockHTML)
	if err != nil {
		t.Fatalf("ParseHTML failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}

	a := records[0]
	if a.Identity != midA {
		t.Errorf("Identity = %q, want %q", a.Identity, midA)
	}
	if len(a.Aliases) != 1 || a.Aliases[0] != "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee" {
		t.Errorf("Aliases = %v", a.Aliases)
	}
	if want := time.Date(2023, 5, 15, 10, 30, 0, 0, time.UTC); !a.CapturedAt.Equal(want) {
		t.Errorf("CapturedAt = %v, want %v", a.CapturedAt, want)
	}
	if a.Location == nil || a.Location.Latitude != 48.85837 || a.Location.Longitude != 2.29448 {
		t.Errorf("Location = %+v", a.Location)
	}
	if a.Kind != model.KindImage {
		t.Errorf("Kind = %v, want image", a.Kind)
	}
	wantURL := "https://app.example.com/dmd/memories?uid=x&sid=" + sidA + "&mid=" + midA + "&ts=1"
	if a.SourceURL != wantURL {
		t.Errorf("SourceURL = %q, want %q", a.SourceURL, wantURL)
	}

	b := records[1]
	if b.Kind != model.KindVideo {
		t.Errorf("Kind = %v, want video", b.Kind)
	}
	if b.Location != nil {
		t.Errorf("0,0 location should be dropped, got %+v", b.Location)
	}
	if want := time.Date(2022, 1, 2, 3, 4, 0, 0, time.UTC); !b.CapturedAt.Equal(want) {
		t.Errorf("CapturedAt = %v, want %v", b.CapturedAt, want)
	}
	if b.Aliases != nil {
		t.Errorf("Aliases = %v, want none", b.Aliases)
	}

	idx := model.IndexRecords(records)
	if idx.Lookup(sidA) != a {
		t.Error("sid alias should find the record")
	}
}

func TestParser_ParseHTML_NoMemories(t *testing.T) {
	_, err := NewParser(zerolog.Nop()).ParseHTML(`<html><body>Nothing here</body></html>`)
	if !errors.Is(err, ErrNoMemories) {
		t.Errorf("err = %v, want ErrNoMemories", err)
	}
}

func TestParser_ParseJSON(t *testing.T) {
	data := []byte(`{"Saved Media": [
		{"Date": "2021-07-04 18:00:00 UTC", "Media Type": "Video", "Location": "Latitude, Longitude: -33.8568, 151.2153",
		 "Download Link": "https://app.example.com/dmd/memories?mid=` + midB + `",
		 "Media Download Url": "https://cdn.example.com/media?mid=` + midB + `&sig=1"},
		{"Date": "2020-01-01 00:00:00 UTC", "Media Type": "Image", "Location": "",
		 "Download Link": "https://app.example.com/dmd/memories?mid=` + midA + `"},
		{"Date": "", "Media Type": "Image", "Download Link": "https://app.example.com/dmd/memories?mid=` + midA + `"}
	]}`)

	records, err := NewParser(zerolog.Nop()).ParseJSON(data)
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}

	first := records[0]
	if first.Identity != midB || first.Kind != model.KindVideo {
		t.Errorf("first = %+v", first)
	}
	if first.SourceURL != "https://cdn.example.com/media?mid="+midB+"&sig=1" {
		t.Errorf("SourceURL = %q, want the direct media link", first.SourceURL)
	}
	if first.Location == nil || first.Location.Latitude != -33.8568 {
		t.Errorf("Location = %+v", first.Location)
	}
	if records[1].Location != nil {
		t.Errorf("Location = %+v, want nil", records[1].Location)
	}
}

func TestParser_Load(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "memories_history.html")
	jsonPath := filepath.Join(dir, "memories_history.json")
	if err := os.WriteFile(htmlPath, []byte(mockHTML), 0o644); err != nil {
		t.Fatal(err)
	}
	jsonData := `  {"Saved Media": [{"Date": "2020-01-01 00:00:00 UTC", "Download Link": "https://x.example.com/?mid=` + midA + `"}]}`
	if err := os.WriteFile(jsonPath, []byte(jsonData), 0o644); err != nil {
		t.Fatal(err)
	}

	parser := NewParser(zerolog.Nop())

	records, err := parser.Load(htmlPath)
	if err != nil || len(records) != 2 {
		t.Errorf("Load(html) = %d records, %v", len(records), err)
	}
	records, err = parser.Load(jsonPath)
	if err != nil || len(records) != 1 {
		t.Errorf("Load(json) = %d records, %v", len(records), err)
	}
	if _, err := parser.Load(filepath.Join(dir, "missing.html")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"2023-05-15 10:30:00 UTC", time.Date(2023, 5, 15, 10, 30, 0, 0, time.UTC), true},
		{" 2023-05-15 10:30 UTC ", time.Date(2023, 5, 15, 10, 30, 0, 0, time.UTC), true},
		{"2023-05-15T10:30:00+02:00", time.Date(2023, 5, 15, 8, 30, 0, 0, time.UTC), true},
		{"yesterday", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := dto.ParseDate(tt.input)
			if ok != tt.ok || !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}
