package ffmpeg

import (
	"slices"
	"strings"
	"testing"
	"time"
)

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestOverlayArgs(t *testing.T) {
	tests := []struct {
		name       string
		enc        Encoder
		wantFilter string
		wantArgs   []string
	}{
		{
			name:       "software",
			enc:        Encoder{Name: SoftwareEncoder},
			wantFilter: "format=yuv420p[v]",
			wantArgs:   []string{"-preset", "medium", "-crf"},
		},
		{
			name:       "nvenc",
			enc:        Encoder{Name: "h264_nvenc"},
			wantFilter: "format=yuv420p[v]",
			wantArgs:   []string{"-preset", "fast"},
		},
		{
			name:       "vaapi",
			enc:        Encoder{Name: "h264_vaapi", Device: "/dev/dri/renderD128"},
			wantFilter: "format=nv12,hwupload[v]",
			wantArgs:   []string{"-init_hw_device", "vaapi=va:/dev/dri/renderD128", "-qp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := OverlayArgs("main.mp4", "overlay.png", "out.mp4.part", tt.enc)

			if got := argAfter(args, "-c:v"); got != tt.enc.Name {
				t.Errorf("-c:v = %q, want %q", got, tt.enc.Name)
			}
			if got := argAfter(args, "-c:a"); got != "copy" {
				t.Errorf("-c:a = %q, want copy", got)
			}
			if got := argAfter(args, "-loop"); got != "1" {
				t.Errorf("-loop = %q, want 1", got)
			}
			filter := argAfter(args, "-filter_complex")
			if !strings.Contains(filter, "scale2ref") || !strings.Contains(filter, "shortest=1") {
				t.Errorf("filter %q should scale the overlay and stop with the main video", filter)
			}
			if !strings.HasSuffix(filter, tt.wantFilter) {
				t.Errorf("filter %q should end with %q", filter, tt.wantFilter)
			}
			for _, want := range tt.wantArgs {
				if !slices.Contains(args, want) {
					t.Errorf("args missing %q: %v", want, args)
				}
			}
			if args[len(args)-1] != "out.mp4.part" || argAfter(args, "-f") != "mp4" {
				t.Errorf("output should be forced to mp4 at the temp path: %v", args)
			}
		})
	}
}

func TestTestEncodeArgs(t *testing.T) {
	args := TestEncodeArgs(Encoder{Name: "h264_qsv"})
	if got := argAfter(args, "-i"); !strings.HasPrefix(got, "testsrc") {
		t.Errorf("input = %q, want testsrc", got)
	}
	if got := argAfter(args, "-frames:v"); got != "1" {
		t.Errorf("-frames:v = %q, want 1", got)
	}
	if args[len(args)-1] != "-" || argAfter(args, "-f") != "lavfi" {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestMetadataArgs(t *testing.T) {
	created := time.Date(2023, 5, 15, 10, 30, 0, 0, time.UTC)

	args := MetadataArgs("in.mp4", "out.mp4.part", created, "+48.85837+002.29448/")
	if !slices.Contains(args, "creation_time=2023-05-15T10:30:00.000000Z") {
		t.Errorf("missing creation_time: %v", args)
	}
	if !slices.Contains(args, "com.apple.quicktime.location.ISO6709=+48.85837+002.29448/") {
		t.Errorf("missing location: %v", args)
	}
	if got := argAfter(args, "-c"); got != "copy" {
		t.Errorf("-c = %q, want copy", got)
	}

	args = MetadataArgs("in.mp4", "out.mp4.part", created, "")
	for _, a := range args {
		if strings.HasPrefix(a, "location=") {
			t.Errorf("no location expected: %v", args)
		}
	}
}

func TestExifToolArgs(t *testing.T) {
	created := time.Date(2023, 5, 15, 10, 30, 0, 0, time.UTC)
	lat, lon := 48.85837, 2.29448

	args := ExifToolArgs("abc.mp4", created, &lat, &lon)
	if !slices.Contains(args, "-CreateDate=2023:05:15 10:30:00") {
		t.Errorf("missing CreateDate: %v", args)
	}
	if !slices.Contains(args, "-XMP:GPSLatitude=48.858370") {
		t.Errorf("missing GPS latitude: %v", args)
	}
	if args[len(args)-1] != "abc.mp4" {
		t.Errorf("path should be last: %v", args)
	}

	args = ExifToolArgs("abc.mp4", created, nil, nil)
	for _, a := range args {
		if strings.Contains(a, "GPS") {
			t.Errorf("no GPS expected: %v", args)
		}
	}
}

func TestStderrMatchers(t *testing.T) {
	tests := []struct {
		name        string
		stderr      string
		unavailable bool
		malformed   bool
	}{
		{"unknown encoder", "Unknown encoder 'h264_nvenc'", true, false},
		{"no device", "[h264_nvenc @ 0x1] No NVENC capable devices found", true, false},
		{"corrupt", "main.mp4: Invalid data found when processing input", false, true},
		{"moov", "[mov,mp4 @ 0x1] moov atom not found", false, true},
		{"clean", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchEncoderUnavailable(tt.stderr); got != tt.unavailable {
				t.Errorf("MatchEncoderUnavailable() = %v, want %v", got, tt.unavailable)
			}
			if got := MatchMalformedInput(tt.stderr); got != tt.malformed {
				t.Errorf("MatchMalformedInput() = %v, want %v", got, tt.malformed)
			}
		})
	}
}

func TestLastLine(t *testing.T) {
	if got := LastLine("first\nsecond\n\n"); got != "second" {
		t.Errorf("LastLine() = %q, want second", got)
	}
	if got := LastLine(""); got != "" {
		t.Errorf("LastLine(\"\") = %q", got)
	}
}
