package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Tool names an external program of the codec toolchain.
type Tool string

const (
	ToolFFmpeg   Tool = "ffmpeg"
	ToolFFprobe  Tool = "ffprobe"
	ToolExifTool Tool = "exiftool"
)

// ErrToolNotFound is returned when a tool's binary is not on PATH.
var ErrToolNotFound = errors.New("tool not found")

// Result holds the captured output of one tool invocation.
type Result struct {
	Stdout string
	Stderr string
}

// Runner runs codec toolchain commands. Tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, tool Tool, args []string) (Result, error)
}

// ExecRunner runs tools as child processes.
type ExecRunner struct {
	paths   map[Tool]string
	verbose bool
}

// NewExecRunner returns a runner resolving each tool through paths, falling
// back to the tool name itself. When verbose is set, stderr is tee'd to
// os.Stderr in real time.
func NewExecRunner(paths map[Tool]string, verbose bool) *ExecRunner {
	resolved := make(map[Tool]string, len(paths))
	for tool, path := range paths {
		if path != "" {
			resolved[tool] = path
		}
	}
	return &ExecRunner{paths: resolved, verbose: verbose}
}

// Binary returns the executable used for tool.
func (r *ExecRunner) Binary(tool Tool) string {
	if path, ok := r.paths[tool]; ok {
		return path
	}
	return string(tool)
}

// Available reports whether tool can be found.
func (r *ExecRunner) Available(tool Tool) bool {
	_, err := exec.LookPath(r.Binary(tool))
	return err == nil
}

// Run executes tool with args and captures its output. A non-zero exit is
// returned as an error carrying the last stderr line.
func (r *ExecRunner) Run(ctx context.Context, tool Tool, args []string) (Result, error) {
	bin, err := exec.LookPath(r.Binary(tool))
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", tool, ErrToolNotFound)
	}

	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if r.verbose {
		cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
	} else {
		cmd.Stderr = &stderr
	}

	err = cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if line := LastLine(res.Stderr); line != "" {
			return res, fmt.Errorf("%s: %w: %s", tool, err, line)
		}
		return res, fmt.Errorf("%s: %w", tool, err)
	}
	return res, nil
}

// LastLine returns the last non-empty line of s.
func LastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
