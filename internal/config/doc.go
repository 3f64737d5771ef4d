// Package config provides configuration management for snap-memories.
//
// This package handles:
//   - Loading and saving settings from TOML files
//   - Default configuration values
//   - MEMORIES_* environment overrides, optionally read from a .env file
//
// # Default Settings
//
// Use DefaultSettings() to get sensible defaults:
//
//	settings := config.DefaultSettings()
//	// 8 download workers, one image worker per CPU (at most 8), 2 video workers
//	// Hardware encoders detected when available
//	// JPEG quality 95
//
// # Loading from File
//
//	settings, err := config.Load("/path/to/config.toml")
//	if err != nil {
//	    // A missing file is not an error; defaults are returned
//	}
//
// # Environment
//
//	MEMORIES_VIDEO_WORKERS=4 MEMORIES_USE_GPU=false memories-dl run ./export
//
// Every TOML key can be overridden by MEMORIES_ followed by the key in
// upper case.
package config
