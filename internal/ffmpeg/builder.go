package ffmpeg

import (
	"fmt"
	"time"
)

// SoftwareEncoder is the encoder every video composite falls back to.
const SoftwareEncoder = "libx264"

// Encoder is one video encoding strategy.
type Encoder struct {
	// Name is the ffmpeg encoder name, e.g. "h264_nvenc".
	Name string

	// Device is the render node for VAAPI encoders.
	Device string
}

// IsVAAPI reports whether the encoder needs a VAAPI device and hwupload.
func (e Encoder) IsVAAPI() bool {
	return e.Name == "h264_vaapi"
}

// qualityArgs returns the encoder-specific speed/quality options.
func (e Encoder) qualityArgs() []string {
	switch e.Name {
	case SoftwareEncoder:
		return []string{"-preset", "medium", "-crf", "18"}
	case "h264_amf":
		return []string{"-quality", "speed"}
	case "h264_nvenc", "h264_qsv":
		return []string{"-preset", "fast"}
	case "h264_videotoolbox":
		return []string{"-q:v", "65"}
	case "h264_vaapi":
		return []string{"-qp", "20"}
	default:
		return nil
	}
}

// hwInitArgs returns the global options that must precede the inputs.
func (e Encoder) hwInitArgs() []string {
	if !e.IsVAAPI() || e.Device == "" {
		return nil
	}
	return []string{"-init_hw_device", "vaapi=va:" + e.Device, "-filter_hw_device", "va"}
}

// uploadFilter is appended to the filter chain so frames reach the encoder
// in the pixel format it accepts.
func (e Encoder) uploadFilter() string {
	if e.IsVAAPI() {
		return "format=nv12,hwupload"
	}
	return "format=yuv420p"
}

func baseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
}

// ListEncodersArgs lists the encoders compiled into ffmpeg.
func ListEncodersArgs() []string {
	return []string{"-hide_banner", "-encoders"}
}

// TestEncodeArgs returns a one-frame synthetic encode to the null muxer,
// used to find out whether an encoder actually works on this machine.
func TestEncodeArgs(enc Encoder) []string {
	args := baseArgs()
	args = append(args, enc.hwInitArgs()...)
	args = append(args, "-f", "lavfi", "-i", "testsrc=duration=1:size=320x240:rate=1")
	if enc.IsVAAPI() {
		args = append(args, "-vf", enc.uploadFilter())
	}
	args = append(args, "-c:v", enc.Name, "-frames:v", "1", "-f", "null", "-")
	return args
}

// OverlayArgs builds the command compositing a still overlay onto every
// frame of a video.
//
// The overlay is looped and scaled to the video's dimensions; the output
// stops with the main video so duration and frame timing are unchanged.
// Audio is copied untouched and container metadata is carried over. The
// muxer is forced to MP4 so out may carry a temporary suffix.
//
// Example:
//
//	args := OverlayArgs("abc-main.mp4", "abc-overlay.png", "/out/abc_combined.mp4.part",
//	    Encoder{Name: "libx264"})
func OverlayArgs(main, overlay, out string, enc Encoder) []string {
	filter := fmt.Sprintf(
		"[1:v]format=rgba[ol0];[ol0][0:v]scale2ref=w=iw:h=ih[ol][base];"+
			"[base][ol]overlay=0:0:format=auto:shortest=1,%s[v]",
		enc.uploadFilter())

	args := baseArgs()
	args = append(args, "-y")
	args = append(args, enc.hwInitArgs()...)
	args = append(args,
		"-i", main,
		"-loop", "1", "-i", overlay,
		"-filter_complex", filter,
		"-map", "[v]", "-map", "0:a?",
		"-c:v", enc.Name,
	)
	args = append(args, enc.qualityArgs()...)
	args = append(args,
		"-c:a", "copy",
		"-map_metadata", "0",
		"-movflags", "+faststart",
		"-f", "mp4", out,
	)
	return args
}

// StreamArgs asks ffprobe for the first video stream of path. A zero exit
// with output means the file is decodable.
func StreamArgs(path string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height",
		"-of", "csv=p=0",
		path,
	}
}

// MetadataArgs remuxes in to out with stream copy, setting the creation
// time and, when location is non-empty, the ISO 6709 location atoms.
func MetadataArgs(in, out string, created time.Time, location string) []string {
	args := baseArgs()
	args = append(args, "-y", "-i", in,
		"-map", "0", "-c", "copy", "-map_metadata", "0",
		"-metadata", "creation_time="+created.UTC().Format("2006-01-02T15:04:05.000000Z"),
	)
	if location != "" {
		args = append(args,
			"-metadata", "location="+location,
			"-metadata", "com.apple.quicktime.location.ISO6709="+location,
		)
	}
	args = append(args, "-movflags", "+use_metadata_tags+faststart", "-f", "mp4", out)
	return args
}

// ExifToolArgs writes the QuickTime and XMP date tags (and GPS tags when lat
// and lon are given) to path in place.
func ExifToolArgs(path string, created time.Time, lat, lon *float64) []string {
	stamp := created.UTC().Format("2006:01:02 15:04:05")
	args := []string{
		"-overwrite_original",
		"-api", "QuickTimeUTC",
		"-CreateDate=" + stamp,
		"-ModifyDate=" + stamp,
		"-TrackCreateDate=" + stamp,
		"-MediaCreateDate=" + stamp,
		"-XMP:DateTimeOriginal=" + stamp,
	}
	if lat != nil && lon != nil {
		args = append(args,
			fmt.Sprintf("-XMP:GPSLatitude=%f", *lat),
			fmt.Sprintf("-XMP:GPSLongitude=%f", *lon),
			fmt.Sprintf("-Keys:GPSCoordinates=%f, %f", *lat, *lon),
			fmt.Sprintf("-UserData:GPSCoordinates=%f, %f", *lat, *lon),
		)
	}
	return append(args, path)
}
