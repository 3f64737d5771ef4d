package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/handiism/snap-memories/internal/ffmpeg"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MEMORIES_"

// WorkDirName is the work directory created inside the output directory
// when no work directory is configured.
const WorkDirName = ".memories-work"

// Settings holds all configuration options.
type Settings struct {
	// Paths
	OutputDir    string `toml:"output_dir"`
	WorkDir      string `toml:"work_dir"`
	ManifestPath string `toml:"manifest_path"`

	// Worker pools
	DownloadWorkers int `toml:"download_workers"`
	ImageWorkers    int `toml:"image_workers"`
	VideoWorkers    int `toml:"video_workers"`

	// Download settings
	DownloadMaxRetries    int     `toml:"download_max_retries"`
	DownloadRetryCooldown float64 `toml:"download_retry_cooldown"`
	DownloadRetryExponent float64 `toml:"download_retry_exponent"`
	DownloadTimeout       int     `toml:"download_timeout"`

	// Encoding
	UseGPU      bool   `toml:"use_gpu"`
	JPEGQuality int    `toml:"jpeg_quality"`
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
	ExifTool    string `toml:"exiftool_path"`

	// Run behaviour
	DryRun                 bool `toml:"dry_run"`
	RemoveConsumedArchives bool `toml:"remove_consumed_archives"`

	// Logging
	LogLevel  string `toml:"log_level"`  // debug, info, warn, error
	LogFormat string `toml:"log_format"` // auto, console, json
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	imageWorkers := runtime.NumCPU()
	if imageWorkers > 8 {
		imageWorkers = 8
	}
	return &Settings{
		DownloadWorkers: 8,
		ImageWorkers:    imageWorkers,
		VideoWorkers:    2,

		DownloadMaxRetries:    3,
		DownloadRetryCooldown: 0.2,
		DownloadRetryExponent: 4.0,
		DownloadTimeout:       300,

		UseGPU:      true,
		JPEGQuality: 95,

		LogLevel:  "info",
		LogFormat: "auto",
	}
}

// DefaultConfigPath returns the default location of the settings file.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(dir, "snap-memories", "config.toml"), nil
}

// Load reads settings from a TOML file. A missing file yields the defaults.
func Load(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return settings, nil
}

// Save writes settings to a TOML file.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// LoadEnv reads .env files, if present, into the process environment and
// then applies MEMORIES_* overrides. Missing files are ignored.
func (s *Settings) LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	return s.ApplyEnv(os.LookupEnv)
}

// ApplyEnv overrides settings from environment variables named
// MEMORIES_<TOML KEY>, e.g. MEMORIES_VIDEO_WORKERS=4.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"output_dir":    &s.OutputDir,
		"work_dir":      &s.WorkDir,
		"manifest_path": &s.ManifestPath,
		"ffmpeg_path":   &s.FFmpegPath,
		"ffprobe_path":  &s.FFprobePath,
		"exiftool_path": &s.ExifTool,
		"log_level":     &s.LogLevel,
		"log_format":    &s.LogFormat,
	}
	ints := map[string]*int{
		"download_workers":     &s.DownloadWorkers,
		"image_workers":        &s.ImageWorkers,
		"video_workers":        &s.VideoWorkers,
		"download_max_retries": &s.DownloadMaxRetries,
		"download_timeout":     &s.DownloadTimeout,
		"jpeg_quality":         &s.JPEGQuality,
	}
	floats := map[string]*float64{
		"download_retry_cooldown": &s.DownloadRetryCooldown,
		"download_retry_exponent": &s.DownloadRetryExponent,
	}
	bools := map[string]*bool{
		"use_gpu":                  &s.UseGPU,
		"dry_run":                  &s.DryRun,
		"remove_consumed_archives": &s.RemoveConsumedArchives,
	}

	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + strings.ToUpper(key))
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	for key, dst := range strs {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	for key, dst := range ints {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, strings.ToUpper(key), err)
			}
			*dst = n
		}
	}
	for key, dst := range floats {
		if v, ok := get(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, strings.ToUpper(key), err)
			}
			*dst = f
		}
	}
	for key, dst := range bools {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, strings.ToUpper(key), err)
			}
			*dst = b
		}
	}
	return nil
}

// Validate ensures the settings are usable.
func (s *Settings) Validate() error {
	if s.DownloadWorkers < 1 || s.ImageWorkers < 1 || s.VideoWorkers < 1 {
		return errors.New("download_workers, image_workers and video_workers must be at least 1")
	}
	if s.DownloadMaxRetries < 0 {
		return errors.New("download_max_retries must not be negative")
	}
	if s.DownloadRetryCooldown < 0 || s.DownloadRetryExponent < 1 {
		return errors.New("download_retry_cooldown must not be negative and download_retry_exponent must be at least 1")
	}
	if s.JPEGQuality < 1 || s.JPEGQuality > 100 {
		return errors.New("jpeg_quality must be between 1 and 100")
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", s.LogLevel)
	}
	switch strings.ToLower(s.LogFormat) {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("log_format %q is not one of auto, console, json", s.LogFormat)
	}
	return nil
}

// CheckInput rejects an output directory equal to an input folder.
func (s *Settings) CheckInput(input string) error {
	if s.OutputDir == "" {
		return errors.New("output_dir must be set")
	}
	in, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	out, err := filepath.Abs(s.OutputDir)
	if err != nil {
		return err
	}
	if info, err := os.Stat(in); err == nil && info.IsDir() && in == out {
		return fmt.Errorf("output directory %s must differ from the input directory", out)
	}
	return nil
}

// DefaultOutputDir places the library next to input, named after it.
func DefaultOutputDir(input string) string {
	input = filepath.Clean(input)
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), stem+"-library")
}

// ResolvedWorkDir returns the work directory, defaulting to a hidden
// directory inside the output directory.
func (s *Settings) ResolvedWorkDir() string {
	if s.WorkDir != "" {
		return s.WorkDir
	}
	return filepath.Join(s.OutputDir, WorkDirName)
}

// ToolPaths returns the configured codec toolchain binaries.
func (s *Settings) ToolPaths() map[ffmpeg.Tool]string {
	return map[ffmpeg.Tool]string{
		ffmpeg.ToolFFmpeg:   s.FFmpegPath,
		ffmpeg.ToolFFprobe:  s.FFprobePath,
		ffmpeg.ToolExifTool: s.ExifTool,
	}
}
