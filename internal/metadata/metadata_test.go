package metadata

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	dsexif "github.com/dsoprea/go-exif/v3"
	"github.com/rs/zerolog"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/handiism/snap-memories/internal/ffmpeg"
	"github.com/handiism/snap-memories/internal/model"
)

var captured = time.Date(2019, 5, 1, 10, 0, 0, 0, time.UTC)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	return img
}

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

// mp4Header is enough for the sniffer to recognise an MP4 file.
var mp4Header = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2")

func TestApply_JPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc_combined.jpg")
	writeJPEG(t, path)

	rec := &model.MemoryRecord{
		Identity:   "abc",
		CapturedAt: captured,
		Location:   &model.GeoPoint{Latitude: 48.85837, Longitude: -2.29448},
	}
	res, err := New(nil, zerolog.Nop()).Apply(context.Background(), path, rec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Skipped != "" || res.Strategy != "exif-jpeg" || res.Path != path {
		t.Fatalf("result = %+v", res)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		t.Fatalf("exif.Decode: %v", err)
	}
	dt, err := x.DateTime()
	if err != nil {
		t.Fatal(err)
	}
	if got := dt.Format("2006:01:02 15:04:05"); got != "2019:05:01 10:00:00" {
		t.Errorf("DateTime = %s", got)
	}
	lat, lon, err := x.LatLong()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(lat-48.85837) > 1e-4 || math.Abs(lon+2.29448) > 1e-4 {
		t.Errorf("LatLong = %f,%f", lat, lon)
	}

	if _, err := f.Seek(0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := jpeg.Decode(f); err != nil {
		t.Errorf("output is no longer a valid JPEG: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(captured) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), captured)
	}
}

func mustEXIF(t *testing.T, created time.Time, loc *model.GeoPoint) *dsexif.IfdBuilder {
	t.Helper()
	ib, err := BuildEXIF(created, loc)
	if err != nil {
		t.Fatalf("BuildEXIF: %v", err)
	}
	return ib
}

func TestInjectJPEG_ReplacesExistingEXIF(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatal(err)
	}

	first, err := InjectJPEG(buf.Bytes(), mustEXIF(t, captured, nil))
	if err != nil {
		t.Fatal(err)
	}
	later := captured.Add(time.Hour)
	second, err := InjectJPEG(first, mustEXIF(t, later, nil))
	if err != nil {
		t.Fatal(err)
	}

	if n := bytes.Count(second, []byte("Exif\x00\x00")); n != 1 {
		t.Errorf("found %d EXIF segments, want 1", n)
	}
	x, err := exif.Decode(bytes.NewReader(second))
	if err != nil {
		t.Fatal(err)
	}
	dt, _ := x.DateTime()
	if got := dt.Format("15:04"); got != "11:00" {
		t.Errorf("DateTime = %s, want the replacement value", got)
	}
	if _, err := jpeg.Decode(bytes.NewReader(second)); err != nil {
		t.Errorf("output is no longer a valid JPEG: %v", err)
	}
}

func TestInjectJPEG_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("not a jpeg")},
		{"png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x00")},
	}

	ib := mustEXIF(t, captured, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := InjectJPEG(tt.data, ib); !errors.Is(err, ErrMalformed) {
				t.Errorf("InjectJPEG(%q) err = %v, want ErrMalformed", tt.data, err)
			}
		})
	}
}

func TestInjectPNG_Malformed(t *testing.T) {
	if _, err := InjectPNG([]byte("\xff\xd8\xff\xe0"), mustEXIF(t, captured, nil)); !errors.Is(err, ErrMalformed) {
		t.Errorf("InjectPNG err = %v, want ErrMalformed", err)
	}
}

func TestBuildEXIF(t *testing.T) {
	local := time.Date(2019, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	tests := []struct {
		name    string
		loc     *model.GeoPoint
		wantGPS bool
	}{
		{"time only", nil, false},
		{"north east", &model.GeoPoint{Latitude: 48.85837, Longitude: 2.29448}, true},
		{"south west", &model.GeoPoint{Latitude: -22.9519, Longitude: -43.2105}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
				t.Fatal(err)
			}
			out, err := InjectJPEG(buf.Bytes(), mustEXIF(t, local, tt.loc))
			if err != nil {
				t.Fatal(err)
			}

			x, err := exif.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("exif.Decode: %v", err)
			}
			for _, field := range []exif.FieldName{exif.DateTime, exif.DateTimeOriginal, exif.DateTimeDigitized} {
				tag, err := x.Get(field)
				if err != nil {
					t.Fatalf("%s: %v", field, err)
				}
				if got, _ := tag.StringVal(); got != "2019:05:01 10:00:00" {
					t.Errorf("%s = %q, want the UTC time", field, got)
				}
			}

			lat, lon, err := x.LatLong()
			if (err == nil) != tt.wantGPS {
				t.Fatalf("LatLong err = %v, want GPS %v", err, tt.wantGPS)
			}
			if tt.wantGPS && (math.Abs(lat-tt.loc.Latitude) > 1e-4 || math.Abs(lon-tt.loc.Longitude) > 1e-4) {
				t.Errorf("LatLong = %f,%f, want %f,%f", lat, lon, tt.loc.Latitude, tt.loc.Longitude)
			}
		})
	}
}

func TestApply_PNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc.png")
	writePNG(t, path)

	rec := &model.MemoryRecord{Identity: "abc", CapturedAt: captured, Location: &model.GeoPoint{Latitude: -33.8568, Longitude: 151.2153}}
	res, err := New(nil, zerolog.Nop()).Apply(context.Background(), path, rec)
	if err != nil || res.Skipped != "" {
		t.Fatalf("Apply = %+v, %v", res, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("output is no longer a valid PNG: %v", err)
	}

	payload := pngChunk(t, data, "eXIf")
	x, err := exif.Decode(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("exif.Decode: %v", err)
	}
	lat, lon, err := x.LatLong()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(lat+33.8568) > 1e-4 || math.Abs(lon-151.2153) > 1e-4 {
		t.Errorf("LatLong = %f,%f", lat, lon)
	}
	dt, err := x.DateTime()
	if err != nil {
		t.Fatal(err)
	}
	if got := dt.Format("2006:01:02 15:04:05"); got != "2019:05:01 10:00:00" {
		t.Errorf("DateTime = %s", got)
	}

	// Applying twice keeps a single eXIf chunk.
	if _, err := New(nil, zerolog.Nop()).Apply(context.Background(), path, rec); err != nil {
		t.Fatal(err)
	}
	again, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := bytes.Count(again, []byte("eXIf")); n != 1 {
		t.Errorf("found %d eXIf chunks, want 1", n)
	}
}

// pngChunk returns the body of the first chunk of type typ.
func pngChunk(t *testing.T, data []byte, typ string) []byte {
	t.Helper()
	pos := len(pngSignature)
	for pos+12 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos:]))
		if string(data[pos+4:pos+8]) == typ {
			return data[pos+8 : pos+8+length]
		}
		pos += 12 + length
	}
	t.Fatalf("no %s chunk", typ)
	return nil
}

func TestApply_Skips(t *testing.T) {
	dir := t.TempDir()

	jpg := filepath.Join(dir, "xyz.jpg")
	writeJPEG(t, jpg)
	before, _ := os.ReadFile(jpg)

	gifPath := filepath.Join(dir, "anim.gif")
	var buf bytes.Buffer
	pal := image.NewPaletted(image.Rect(0, 0, 2, 2), []color.Color{color.Black, color.White})
	if err := gif.Encode(&buf, pal, nil); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(gifPath, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &model.MemoryRecord{Identity: "x", CapturedAt: captured}
	tests := []struct {
		name string
		path string
		rec  *model.MemoryRecord
		want string
	}{
		{"no record", jpg, nil, model.ReasonMetadataAbsent},
		{"no capture time", jpg, &model.MemoryRecord{Identity: "x"}, model.ReasonMetadataAbsent},
		{"gif", gifPath, rec, model.ReasonMetadataUnsupported},
	}

	svc := New(nil, zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Apply(context.Background(), tt.path, tt.rec)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if res.Skipped != tt.want {
				t.Errorf("Skipped = %q, want %q", res.Skipped, tt.want)
			}
		})
	}

	after, _ := os.ReadFile(jpg)
	if !bytes.Equal(before, after) {
		t.Error("skipped file was modified")
	}
}

func TestApply_MissingFile(t *testing.T) {
	rec := &model.MemoryRecord{Identity: "x", CapturedAt: captured}
	_, err := New(nil, zerolog.Nop()).Apply(context.Background(), filepath.Join(t.TempDir(), "gone.jpg"), rec)
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

type videoRunner struct {
	exiftool error
	ffmpeg   error
	calls    []ffmpeg.Tool
}

func (r *videoRunner) Run(_ context.Context, tool ffmpeg.Tool, args []string) (ffmpeg.Result, error) {
	r.calls = append(r.calls, tool)
	switch tool {
	case ffmpeg.ToolExifTool:
		return ffmpeg.Result{}, r.exiftool
	case ffmpeg.ToolFFmpeg:
		if r.ffmpeg != nil {
			return ffmpeg.Result{}, r.ffmpeg
		}
		out := args[len(args)-1]
		return ffmpeg.Result{}, os.WriteFile(out, append(append([]byte(nil), mp4Header...), "remuxed"...), 0o644)
	}
	return ffmpeg.Result{}, ffmpeg.ErrToolNotFound
}

func TestApply_Video(t *testing.T) {
	tests := []struct {
		name     string
		runner   *videoRunner
		strategy string
		skipped  string
		remuxed  bool
	}{
		{
			name:     "exiftool",
			runner:   &videoRunner{},
			strategy: "exiftool",
		},
		{
			name:     "ffmpeg fallback",
			runner:   &videoRunner{exiftool: ffmpeg.ErrToolNotFound},
			strategy: "ffmpeg",
			remuxed:  true,
		},
		{
			name:    "every strategy fails",
			runner:  &videoRunner{exiftool: ffmpeg.ErrToolNotFound, ffmpeg: errors.New("exit status 1")},
			skipped: model.ReasonMetadataUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "xyz.mp4")
			original := append(append([]byte(nil), mp4Header...), "original"...)
			if err := os.WriteFile(path, original, 0o644); err != nil {
				t.Fatal(err)
			}

			rec := &model.MemoryRecord{Identity: "xyz", CapturedAt: captured}
			res, err := New(tt.runner, zerolog.Nop()).Apply(context.Background(), path, rec)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if res.Strategy != tt.strategy || res.Skipped != tt.skipped {
				t.Errorf("result = %+v", res)
			}

			data, _ := os.ReadFile(path)
			if got := bytes.HasSuffix(data, []byte("remuxed")); got != tt.remuxed {
				t.Errorf("remuxed = %v, want %v", got, tt.remuxed)
			}
			if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
				t.Error("temporary file left behind")
			}
		})
	}
}

func TestToDMS(t *testing.T) {
	tests := []struct {
		deg     float64
		d, m, s uint32
	}{
		{48.85837, 48, 51, 301320},
		{-2.5, 2, 30, 0},
		{10.9999999999, 11, 0, 0},
		{0, 0, 0, 0},
	}
	for _, tt := range tests {
		d, m, s := toDMS(tt.deg)
		if d != tt.d || m != tt.m || s != tt.s {
			t.Errorf("toDMS(%v) = %d %d %d, want %d %d %d", tt.deg, d, m, s, tt.d, tt.m, tt.s)
		}
		r := dmsRationals(tt.deg)
		if len(r) != 3 || r[0].Numerator != tt.d || r[1].Numerator != tt.m || r[2].Numerator != tt.s || r[2].Denominator != 10000 {
			t.Errorf("dmsRationals(%v) = %+v", tt.deg, r)
		}
	}
}
