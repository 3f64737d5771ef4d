// Package ffmpeg builds and runs codec toolchain commands (ffmpeg, ffprobe,
// exiftool).
//
// Argument builders are pure functions so they can be tested without the
// tools installed. Runner abstracts process execution; ExecRunner is the
// real implementation and tests use fakes.
//
//	runner := ffmpeg.NewExecRunner(map[ffmpeg.Tool]string{ffmpeg.ToolFFmpeg: "/usr/bin/ffmpeg"}, false)
//	_, err := runner.Run(ctx, ffmpeg.ToolFFmpeg,
//	    ffmpeg.OverlayArgs(main, overlay, tmp, ffmpeg.Encoder{Name: ffmpeg.SoftwareEncoder}))
//
// Stderr classifiers (MatchEncoderUnavailable, MatchMalformedInput) tell an
// unusable encoder apart from a corrupt input.
package ffmpeg
