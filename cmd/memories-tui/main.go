package main

import (
	"fmt"
	"os"

	"github.com/handiism/snap-memories/internal/config"
	"github.com/handiism/snap-memories/internal/tui"
)

func main() {
	settings, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := tui.Run(settings); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadSettings() (*config.Settings, error) {
	path, err := config.DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := settings.LoadEnv(); err != nil {
		return nil, err
	}
	return settings, settings.Validate()
}
