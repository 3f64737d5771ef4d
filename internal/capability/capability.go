// Package capability detects which hardware video encoders work on this
// machine.
//
// Detection runs at most once per Detector. Each candidate encoder is tried
// with a one-frame synthetic encode; only encoders that succeed are kept, in
// a fixed preference order. Detection never fails: when nothing works (or
// ffmpeg is missing) the result is an empty Set, meaning software only.
package capability

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/handiism/snap-memories/internal/ffmpeg"
	"github.com/rs/zerolog"
)

// Families lists hardware H.264 encoders in preference order. VAAPI is the
// generic accelerated path and comes last.
var Families = []string{
	"h264_nvenc",
	"h264_amf",
	"h264_qsv",
	"h264_videotoolbox",
	"h264_vaapi",
}

// Set is the ordered list of usable hardware encoders. The zero Set means
// software encoding only. A Set is never modified after detection.
type Set struct {
	Encoders []string

	// Device is the VAAPI render node, if h264_vaapi is in Encoders.
	Device string
}

// Empty reports whether no hardware encoder is available.
func (s Set) Empty() bool {
	return len(s.Encoders) == 0
}

// Contains reports whether name is in the set.
func (s Set) Contains(name string) bool {
	for _, e := range s.Encoders {
		if e == name {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no memory with s.
func (s Set) Clone() Set {
	return Set{Encoders: append([]string(nil), s.Encoders...), Device: s.Device}
}

// String lists the encoders, or "software" when empty.
func (s Set) String() string {
	if s.Empty() {
		return "software"
	}
	return strings.Join(s.Encoders, ",")
}

// Strategies returns the encoders to try for a video composite: the
// hardware encoders of s in order, then the software encoder.
func (s Set) Strategies() []ffmpeg.Encoder {
	encoders := make([]ffmpeg.Encoder, 0, len(s.Encoders)+1)
	for _, name := range s.Encoders {
		if name == ffmpeg.SoftwareEncoder {
			continue
		}
		enc := ffmpeg.Encoder{Name: name}
		if enc.IsVAAPI() {
			enc.Device = s.Device
		}
		encoders = append(encoders, enc)
	}
	return append(encoders, ffmpeg.Encoder{Name: ffmpeg.SoftwareEncoder})
}

// Detector detects hardware encoders once and remembers the result.
type Detector struct {
	runner  ffmpeg.Runner
	enabled bool
	log     zerolog.Logger

	// renderDevice finds the VAAPI render node. Replaced in tests.
	renderDevice func() string

	once sync.Once
	set  Set
}

// NewDetector creates a Detector. When enabled is false Detect returns the empty
// Set without running anything.
func NewDetector(runner ffmpeg.Runner, enabled bool, log zerolog.Logger) *Detector {
	return &Detector{
		runner:       runner,
		enabled:      enabled,
		log:          log.With().Str("component", "capability").Logger(),
		renderDevice: firstRenderDevice,
	}
}

// Detect returns the usable hardware encoders. Only the first call runs ffmpeg.
func (p *Detector) Detect(ctx context.Context) Set {
	p.once.Do(func() {
		p.set = p.detect(ctx)
		p.log.Debug().Str("encoders", p.set.String()).Msg("encoder detection finished")
	})
	return p.set.Clone()
}

func (p *Detector) detect(ctx context.Context) Set {
	if !p.enabled || p.runner == nil {
		return Set{}
	}

	res, err := p.runner.Run(ctx, ffmpeg.ToolFFmpeg, ffmpeg.ListEncodersArgs())
	if err != nil {
		p.log.Debug().Err(err).Msg("cannot list encoders")
		return Set{}
	}

	var set Set
	for _, name := range Families {
		if !listsEncoder(res.Stdout, name) {
			continue
		}

		enc := ffmpeg.Encoder{Name: name}
		if enc.IsVAAPI() {
			enc.Device = p.renderDevice()
			if enc.Device == "" {
				continue
			}
		}

		if _, err := p.runner.Run(ctx, ffmpeg.ToolFFmpeg, ffmpeg.TestEncodeArgs(enc)); err != nil {
			p.log.Debug().Str("encoder", name).Err(err).Msg("test encode failed")
			continue
		}

		set.Encoders = append(set.Encoders, name)
		if enc.IsVAAPI() {
			set.Device = enc.Device
		}
	}
	return set
}

// listsEncoder reports whether `ffmpeg -encoders` output contains name as
// an encoder entry (" V....D h264_nvenc  NVIDIA NVENC ...").
func listsEncoder(output, name string) bool {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}

// firstRenderDevice returns the first /dev/dri/renderD* node, or "".
func firstRenderDevice() string {
	matches, _ := filepath.Glob("/dev/dri/renderD*")
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}
