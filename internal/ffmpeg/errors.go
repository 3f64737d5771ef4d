package ffmpeg

import "regexp"

// Pre-compiled regexes for classifying ffmpeg stderr output.
var (
	reEncoderUnavailable = regexp.MustCompile(
		`(?i)Unknown encoder|` +
			`No NVENC capable devices found|` +
			`Cannot load (nvcuda|libcuda|amfrt)|` +
			`Failed to (initialise|create) VAAPI|` +
			`Device creation failed|` +
			`Error initializing output stream|` +
			`Error while opening encoder|` +
			`Could not open encoder`)

	reMalformedInput = regexp.MustCompile(
		`(?i)Invalid data found when processing input|` +
			`moov atom not found|` +
			`could not find codec parameters|` +
			`End of file`)
)

// MatchEncoderUnavailable reports whether stderr says the encoder itself
// could not be used (as opposed to the input being bad).
func MatchEncoderUnavailable(stderr string) bool {
	return reEncoderUnavailable.MatchString(stderr)
}

// MatchMalformedInput reports whether stderr says an input is corrupt.
func MatchMalformedInput(stderr string) bool {
	return reMalformedInput.MatchString(stderr)
}
