package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/handiism/snap-memories/internal/capability"
	"github.com/handiism/snap-memories/internal/combine"
	"github.com/handiism/snap-memories/internal/config"
	"github.com/handiism/snap-memories/internal/ffmpeg"
	memhttp "github.com/handiism/snap-memories/internal/http"
	ioutils "github.com/handiism/snap-memories/internal/io"
	"github.com/handiism/snap-memories/internal/metadata"
	"github.com/handiism/snap-memories/internal/model"
	"github.com/handiism/snap-memories/internal/pairing"
	"github.com/handiism/snap-memories/internal/planner"
	"github.com/handiism/snap-memories/internal/scan"
)

const (
	idABC    = "11111111-2222-3333-4444-555555555555"
	idLonely = "22222222-3333-4444-5555-666666666666"
	idVideo  = "33333333-4444-5555-6666-777777777777"
	idZip    = "44444444-5555-6666-7777-888888888888"
	idGone   = "55555555-6666-7777-8888-999999999999"
)

var mp4Header = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2")

// fakeRunner stands in for ffprobe, ffmpeg and exiftool. Encoders listed
// in failing exit non-zero.
type fakeRunner struct {
	mu       sync.Mutex
	failing  map[string]bool
	encoders []string
}

func (f *fakeRunner) Run(_ context.Context, tool ffmpeg.Tool, args []string) (ffmpeg.Result, error) {
	switch tool {
	case ffmpeg.ToolFFprobe:
		return ffmpeg.Result{Stdout: "h264,320,240\n"}, nil
	case ffmpeg.ToolExifTool:
		return ffmpeg.Result{}, nil
	case ffmpeg.ToolFFmpeg:
		enc := argAfter(args, "-c:v")
		if enc != "" {
			f.mu.Lock()
			f.encoders = append(f.encoders, enc)
			f.mu.Unlock()
		}
		if f.failing[enc] {
			return ffmpeg.Result{Stderr: "Error while opening encoder"}, errors.New("exit status 1")
		}
		out := args[len(args)-1]
		return ffmpeg.Result{}, os.WriteFile(out, append(append([]byte(nil), mp4Header...), "encoded"...), 0o644)
	}
	return ffmpeg.Result{}, ffmpeg.ErrToolNotFound
}

func (f *fakeRunner) tried() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.encoders...)
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 128})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(files[name]); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.DefaultSettings()
	s.OutputDir = filepath.Join(t.TempDir(), "out")
	s.UseGPU = false
	s.DownloadRetryCooldown = 0
	return s
}

// eventLog collects events; the executor never calls it concurrently.
type eventLog struct {
	events []Event
}

func (l *eventLog) add(e Event) { l.events = append(l.events, e) }

func (l *eventLog) count(typ EventType) int {
	n := 0
	for _, e := range l.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// outcomeOf returns the outcome of the first action of kind for identity.
func outcomeOf(t *testing.T, plan *planner.Plan, stats *RunStatistics, kind planner.ActionKind, identity string) model.Outcome {
	t.Helper()
	for _, a := range plan.Actions {
		if a.Kind == kind && a.Identity == identity {
			return stats.Outcomes[a.ID]
		}
	}
	t.Fatalf("no %s action for %s", kind, identity)
	return model.Outcome{}
}

func exifTime(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	x, err := exif.Decode(f)
	if err != nil {
		t.Fatalf("decode exif of %s: %v", path, err)
	}
	tm, err := x.DateTime()
	if err != nil {
		t.Fatalf("DateTime: %v", err)
	}
	return tm.Format("2006:01:02 15:04:05")
}

func TestPipeline_Folder(t *testing.T) {
	in := t.TempDir()
	writeFile(t, filepath.Join(in, idABC+"-main.jpg"), jpegBytes(t, 40, 30))
	writeFile(t, filepath.Join(in, idABC+"-overlay.png"), pngBytes(t, 40, 30))
	writeFile(t, filepath.Join(in, "xyz.mp4"), append(append([]byte(nil), mp4Header...), "video"...))
	writeFile(t, filepath.Join(in, idLonely+"-main.jpg"), jpegBytes(t, 8, 8))
	writeFile(t, filepath.Join(in, "json", "memories_history.json"), []byte(`{"Saved Media": [
		{"Date": "2023-05-15 10:30:00 UTC", "Media Type": "Image",
		 "Location": "Latitude, Longitude: 48.85837, 2.29448",
		 "Download Link": "https://app.example.com/dmd/memories?mid=`+idABC+`"}
	]}`))

	settings := testSettings(t)
	events := &eventLog{}
	p := New(settings, zerolog.Nop(), events.add, WithRunner(&fakeRunner{}))

	ctx := context.Background()
	plan, err := p.Plan(ctx, in)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	stats, err := p.Run(ctx, plan)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if stats.Failed() {
		t.Fatalf("unexpected failures: %+v", stats.Entries)
	}
	if got := events.count(EventSettled); got != len(plan.Actions) {
		t.Errorf("settled events = %d, want %d", got, len(plan.Actions))
	}

	out := settings.OutputDir

	// abc: composited, dated from the manifest.
	combined := filepath.Join(out, idABC+"_combined.jpg")
	if got := exifTime(t, combined); got != "2023:05:15 10:30:00" {
		t.Errorf("DateTime = %s, want 2023:05:15 10:30:00", got)
	}
	if o := outcomeOf(t, plan, stats, planner.ActionApplyMetadata, idABC); o.Status != model.StatusSucceeded {
		t.Errorf("abc metadata = %+v", o)
	}

	// xyz.mp4: copied through, no metadata.
	if _, err := os.Stat(filepath.Join(out, "xyz.mp4")); err != nil {
		t.Errorf("xyz.mp4 missing: %v", err)
	}
	if o := outcomeOf(t, plan, stats, planner.ActionApplyMetadata, "xyz"); o.Reason != model.ReasonMetadataAbsent {
		t.Errorf("xyz metadata = %+v, want metadata-absent", o)
	}

	// main without overlay: copied under its identity.
	if _, err := os.Stat(filepath.Join(out, idLonely+".jpg")); err != nil {
		t.Errorf("lonely main missing: %v", err)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ioutils.PartSuffix) || e.Name() == LockName {
			t.Errorf("leftover %s in output", e.Name())
		}
	}
}

// snapshot lists every file under dir with its size and modification time.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		files[rel] = fmt.Sprintf("%d@%d", info.Size(), info.ModTime().UnixNano())
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func TestPipeline_LeavesInputUntouched(t *testing.T) {
	in := t.TempDir()
	writeFile(t, filepath.Join(in, idLonely), jpegBytes(t, 8, 8))
	writeFile(t, filepath.Join(in, "mydata~1.zip"), zipBytes(t, map[string][]byte{
		"a/pic.jpg": jpegBytes(t, 6, 6),
		"b/pic.jpg": jpegBytes(t, 9, 9),
	}))
	before := snapshot(t, in)

	settings := testSettings(t)
	settings.RemoveConsumedArchives = false
	p := New(settings, zerolog.Nop(), nil, WithRunner(&fakeRunner{}))

	ctx := context.Background()
	plan, err := p.Plan(ctx, in)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	stats, err := p.Run(ctx, plan)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Failed() {
		t.Fatalf("unexpected failures: %+v", stats.Entries)
	}

	if after := snapshot(t, in); !reflect.DeepEqual(before, after) {
		t.Errorf("input folder changed:\nbefore %v\nafter  %v", before, after)
	}

	tests := []struct {
		name  string
		width int
	}{
		{idLonely + ".jpg", 8},
		{"pic.jpg", 6},
		{"pic-2.jpg", 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := os.Open(filepath.Join(settings.OutputDir, tt.name))
			if err != nil {
				t.Fatalf("output missing: %v", err)
			}
			defer f.Close()
			cfg, _, err := image.DecodeConfig(f)
			if err != nil {
				t.Fatalf("decode %s: %v", tt.name, err)
			}
			if cfg.Width != tt.width {
				t.Errorf("%s width = %d, want %d", tt.name, cfg.Width, tt.width)
			}
		})
	}

	if _, err := os.Stat(plan.WorkDir); !os.IsNotExist(err) {
		t.Errorf("work directory should be cleaned up: %v", err)
	}
}

func TestPipeline_Manifest(t *testing.T) {
	main := jpegBytes(t, 20, 20)
	archive := zipBytes(t, map[string][]byte{
		idZip + "-main.jpg":    main,
		idZip + "-overlay.png": pngBytes(t, 20, 20),
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plain":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write(main)
		case "/zip":
			w.Header().Set("Content-Type", "application/zip")
			_, _ = w.Write(archive)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	entry := func(id, path string) string {
		return `{"Date": "2022-01-02 03:04:05 UTC", "Media Type": "Image", "Location": "",
			"Download Link": "` + srv.URL + path + `?mid=` + id + `"}`
	}
	manifestPath := filepath.Join(t.TempDir(), "memories_history.json")
	writeFile(t, manifestPath, []byte(`{"Saved Media": [`+
		entry(idABC, "/plain")+`,`+entry(idZip, "/zip")+`,`+entry(idGone, "/gone")+`]}`))

	settings := testSettings(t)
	events := &eventLog{}
	p := New(settings, zerolog.Nop(), events.add, WithRunner(&fakeRunner{}))

	ctx := context.Background()
	plan, err := p.Plan(ctx, manifestPath)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	stats, err := p.Run(ctx, plan)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := settings.OutputDir
	if got := exifTime(t, filepath.Join(out, idABC+".jpg")); got != "2022:01:02 03:04:05" {
		t.Errorf("plain download DateTime = %s", got)
	}
	if got := exifTime(t, filepath.Join(out, idZip+"_combined.jpg")); got != "2022:01:02 03:04:05" {
		t.Errorf("zipped download DateTime = %s", got)
	}

	dl := outcomeOf(t, plan, stats, planner.ActionDownload, idGone)
	if dl.Status != model.StatusFailed || dl.ErrKind != model.ResourceUnavailable {
		t.Errorf("download of missing item = %+v, want failed resource-unavailable", dl)
	}
	if dl.Attempts != 1 {
		t.Errorf("404 should not be retried, attempts = %d", dl.Attempts)
	}

	// Everything downstream of the failed download is gated.
	for _, a := range plan.Actions {
		if a.Identity != idGone || a.Kind == planner.ActionDownload {
			continue
		}
		if o := stats.Outcomes[a.ID]; o.Reason != model.ReasonDependencyFailed {
			t.Errorf("%s of missing item = %+v, want dependency-failed", a.Kind, o)
		}
	}

	// The work directory is kept because something failed.
	last := plan.Actions[len(plan.Actions)-1]
	if last.Kind != planner.ActionCleanup || stats.Outcomes[last.ID].Reason != model.ReasonDependencyFailed {
		t.Errorf("final cleanup = %+v", stats.Outcomes[last.ID])
	}
	if !stats.Failed() {
		t.Error("stats should report the failure")
	}
	if stats.BytesDownloaded != int64(len(main)+len(archive)) {
		t.Errorf("BytesDownloaded = %d, want %d", stats.BytesDownloaded, len(main)+len(archive))
	}

	received := make(map[string]int64)
	for _, e := range events.events {
		if e.Type != EventProgress {
			continue
		}
		if e.Kind != planner.ActionDownload || e.Received <= 0 {
			t.Errorf("unexpected progress event %+v", e)
		}
		received[e.Identity] = max(received[e.Identity], e.Received)
	}
	tests := []struct {
		identity string
		size     int
	}{
		{idABC, len(main)},
		{idZip, len(archive)},
		{idGone, 0},
	}
	for _, tt := range tests {
		if got := received[tt.identity]; got > int64(tt.size) || (tt.size > 0 && got == 0) {
			t.Errorf("progress for %s reached %d bytes, body is %d", tt.identity, got, tt.size)
		}
	}
}

func TestExecutor_AllHardwareEncodersFail(t *testing.T) {
	in := t.TempDir()
	writeFile(t, filepath.Join(in, idVideo+"-main.mp4"), append(append([]byte(nil), mp4Header...), "video"...))
	writeFile(t, filepath.Join(in, idVideo+"-overlay.png"), pngBytes(t, 16, 16))

	found, err := scan.New(zerolog.Nop()).Folder(in)
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "out")
	plan := planner.Build(planner.Input{
		Assets:       found.Assets,
		Pairing:      pairing.Resolve(found.Assets),
		Capabilities: capability.Set{Encoders: []string{"h264_nvenc", "h264_qsv"}},
		OutputDir:    out,
		WorkDir:      filepath.Join(out, ".work"),
	})

	runner := &fakeRunner{failing: map[string]bool{"h264_nvenc": true, "h264_qsv": true}}
	exec := newTestExecutor(runner, Options{})

	stats := exec.Execute(context.Background(), plan)

	o := outcomeOf(t, plan, stats, planner.ActionCombineVideo, idVideo)
	if o.Status != model.StatusSucceeded {
		t.Fatalf("video combine = %+v, want success through software fallback", o)
	}
	if o.Attempts != 3 || !strings.HasPrefix(o.Detail, ffmpeg.SoftwareEncoder) {
		t.Errorf("outcome = %+v, want 3 attempts ending in %s", o, ffmpeg.SoftwareEncoder)
	}
	if got, want := runner.tried(), []string{"h264_nvenc", "h264_qsv", ffmpeg.SoftwareEncoder}; !slices.Equal(got, want) {
		t.Errorf("encoders tried = %v, want %v", got, want)
	}
	if _, err := os.Stat(filepath.Join(out, idVideo+"_combined.mp4")); err != nil {
		t.Errorf("combined video missing: %v", err)
	}
}

func TestExecutor_RetriesTransientErrors(t *testing.T) {
	body := jpegBytes(t, 4, 4)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "out")
	found := scan.New(zerolog.Nop()).Manifest([]*model.MemoryRecord{
		{Identity: idABC, SourceURL: srv.URL + "/m?mid=" + idABC, Kind: model.KindImage},
	})
	plan := planner.Build(planner.Input{
		Assets:    found.Assets,
		OutputDir: out,
		WorkDir:   filepath.Join(out, ".work"),
	})

	events := &eventLog{}
	exec := NewExecutor(Options{MaxRetries: 3, RetryExponent: 2}, Services{
		Fetcher:  memhttp.NewClient(0),
		Combiner: combine.New(&fakeRunner{}, nil, zerolog.Nop()),
		Metadata: metadata.New(&fakeRunner{}, zerolog.Nop()),
		Scanner:  scan.New(zerolog.Nop()),
	}, zerolog.Nop(), events.add)

	stats := exec.Execute(context.Background(), plan)

	o := outcomeOf(t, plan, stats, planner.ActionDownload, idABC)
	if o.Status != model.StatusSucceeded || o.Attempts != 3 {
		t.Errorf("download = %+v, want success on attempt 3", o)
	}
	if got := events.count(EventRetry); got != 2 {
		t.Errorf("retry events = %d, want 2", got)
	}
	if filepath.Ext(o.Output) != ".jpg" {
		t.Errorf("download output %s should be named after its content", o.Output)
	}
	if _, err := os.Stat(filepath.Join(out, idABC+".jpg")); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestRun_RoutesDeferredCombineByContent(t *testing.T) {
	video := append(append([]byte(nil), mp4Header...), "video"...)

	tests := []struct {
		name     string
		files    map[string][]byte
		kind     planner.ActionKind
		deferred bool
		want     pool
		output   string
	}{
		{
			name:     "video pair labelled image",
			files:    map[string][]byte{idVideo + "-main.mp4": video, idVideo + "-overlay.png": pngBytes(t, 8, 8)},
			kind:     planner.ActionCombineImage,
			deferred: true,
			want:     poolVideo,
			output:   "mem_combined.mp4",
		},
		{
			name:     "image pair labelled video",
			files:    map[string][]byte{idABC + "-main.jpg": jpegBytes(t, 8, 8), idABC + "-overlay.png": pngBytes(t, 8, 8)},
			kind:     planner.ActionCombineVideo,
			deferred: true,
			want:     poolImage,
			output:   "mem_combined.jpg",
		},
		{
			name:     "lone video is a copy",
			files:    map[string][]byte{"xyz.mp4": video},
			kind:     planner.ActionCombineVideo,
			deferred: true,
			want:     poolImage,
			output:   "mem.mp4",
		},
		{
			name: "planned video combine",
			kind: planner.ActionCombineVideo,
			want: poolVideo,
		},
		{
			name: "download",
			kind: planner.ActionDownload,
			want: poolDownload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, data := range tt.files {
				writeFile(t, filepath.Join(dir, name), data)
			}
			out := t.TempDir()
			plan := &planner.Plan{
				OutputDir: out,
				Actions: []*planner.Action{{
					Kind:     tt.kind,
					Identity: "mem",
					Main:     planner.Literal(dir),
					Output:   filepath.Join(out, "mem"),
					Deferred: tt.deferred,
				}},
			}

			exec := newTestExecutor(&fakeRunner{}, Options{})
			r := newRun(exec, context.Background(), plan)
			if got := r.poolOf(plan.Actions[0]); got != tt.want {
				t.Errorf("poolOf = %d, want %d", got, tt.want)
			}
			if tt.output == "" {
				return
			}

			stats := exec.Execute(context.Background(), plan)
			o := stats.Outcomes[0]
			if o.Status != model.StatusSucceeded || o.Output != filepath.Join(out, tt.output) {
				t.Errorf("outcome = %+v, want %s", o, tt.output)
			}
		})
	}
}

func folderPlan(t *testing.T) *planner.Plan {
	t.Helper()
	in := t.TempDir()
	writeFile(t, filepath.Join(in, idABC+"-main.jpg"), jpegBytes(t, 10, 10))
	writeFile(t, filepath.Join(in, idABC+"-overlay.png"), pngBytes(t, 10, 10))
	writeFile(t, filepath.Join(in, "xyz.mp4"), append(append([]byte(nil), mp4Header...), "video"...))
	writeFile(t, filepath.Join(in, "mydata~1.zip"), zipBytes(t, map[string][]byte{
		idZip + "-main.jpg": jpegBytes(t, 6, 6),
		idLonely:            jpegBytes(t, 6, 6),
	}))

	found, err := scan.New(zerolog.Nop()).Folder(in)
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "out")
	return planner.Build(planner.Input{
		Assets:    found.Assets,
		Pairing:   pairing.Resolve(found.Assets),
		Skipped:   found.Skipped,
		OutputDir: out,
		WorkDir:   filepath.Join(out, ".work"),
	})
}

func newTestExecutor(runner ffmpeg.Runner, opts Options, onEvent ...func(Event)) *Executor {
	var cb func(Event)
	if len(onEvent) > 0 {
		cb = onEvent[0]
	}
	return NewExecutor(opts, Services{
		Fetcher:  memhttp.NewClient(0),
		Combiner: combine.New(runner, nil, zerolog.Nop()),
		Metadata: metadata.New(runner, zerolog.Nop()),
		Scanner:  scan.New(zerolog.Nop()),
	}, zerolog.Nop(), cb)
}

func TestExecutor_DryRunMatchesRealRun(t *testing.T) {
	plan := folderPlan(t)

	events := &eventLog{}
	dry := newTestExecutor(&fakeRunner{}, Options{DryRun: true}, events.add).Execute(context.Background(), plan)

	if len(events.events) != len(plan.Actions) {
		t.Fatalf("dry run events = %d, want %d", len(events.events), len(plan.Actions))
	}
	for i, e := range events.events {
		if e.Type != EventPlanned || e.Description != plan.Describe(i) {
			t.Errorf("event %d = %+v, want the description of action %d", i, e, i)
		}
	}
	if _, err := os.Stat(plan.OutputDir); !os.IsNotExist(err) {
		t.Errorf("dry run touched the output directory: %v", err)
	}

	actual := newTestExecutor(&fakeRunner{}, Options{ImageWorkers: 4}).Execute(context.Background(), plan)
	if actual.Failed() {
		t.Fatalf("real run failed: %+v", actual.Entries)
	}

	for _, a := range plan.Actions {
		d, r := dry.Outcomes[a.ID], actual.Outcomes[a.ID]
		if d.Status != model.StatusSucceeded {
			t.Errorf("dry %s = %v", a.Kind, d.Status)
		}
		if a.Stage() == planner.StageCombine && d.Output != r.Output {
			t.Errorf("%s output: dry %s, real %s", a.Kind, d.Output, r.Output)
		}
	}
	if _, err := os.Stat(plan.WorkDir); !os.IsNotExist(err) {
		t.Errorf("work directory should be cleaned up: %v", err)
	}
}

func TestExecutor_Cancelled(t *testing.T) {
	plan := folderPlan(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := newTestExecutor(&fakeRunner{}, Options{}).Execute(ctx, plan)

	for _, a := range plan.Actions {
		if o := stats.Outcomes[a.ID]; o.Reason != model.ReasonCancelled {
			t.Errorf("%s = %+v, want cancelled", a.Kind, o)
		}
	}
	if !stats.Cancelled {
		t.Error("stats should record the cancellation")
	}
	if _, err := os.Stat(plan.OutputDir); !os.IsNotExist(err) {
		t.Errorf("cancelled run wrote output: %v", err)
	}
}

func TestExecutor_ReRunIsIdempotent(t *testing.T) {
	plan := folderPlan(t)
	exec := newTestExecutor(&fakeRunner{}, Options{})

	first := exec.Execute(context.Background(), plan)
	second := exec.Execute(context.Background(), plan)

	a, b := first.Outputs(plan), second.Outputs(plan)
	if !slices.Equal(a, b) {
		t.Errorf("outputs differ between runs: %v vs %v", a, b)
	}
	if second.Failed() {
		t.Errorf("re-run failed: %+v", second.Entries)
	}
}

func TestPipeline_RunLocked(t *testing.T) {
	settings := testSettings(t)
	if err := os.MkdirAll(settings.OutputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	lock := flock.New(filepath.Join(settings.OutputDir, LockName))
	if ok, err := lock.TryLock(); !ok || err != nil {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer lock.Unlock()

	p := New(settings, zerolog.Nop(), nil, WithRunner(&fakeRunner{}))
	_, err := p.Run(context.Background(), &planner.Plan{OutputDir: settings.OutputDir})
	if !errors.Is(err, ErrLocked) {
		t.Errorf("err = %v, want ErrLocked", err)
	}
}
