package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/handiism/snap-memories/internal/config"
	"github.com/handiism/snap-memories/internal/logging"
)

type commandContext struct {
	configFlag    *string
	verboseFlag   *bool
	quietFlag     *bool
	logFormatFlag *string

	settingsOnce sync.Once
	settings     *config.Settings
	settingsErr  error
}

func newCommandContext(configFlag *string, verboseFlag, quietFlag *bool, logFormatFlag *string) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		verboseFlag:   verboseFlag,
		quietFlag:     quietFlag,
		logFormatFlag: logFormatFlag,
	}
}

// ensureSettings loads the config file, then .env files and MEMORIES_*
// variables. Command flags are applied on top by each command.
func (c *commandContext) ensureSettings() (*config.Settings, error) {
	c.settingsOnce.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		if path == "" {
			defaultPath, err := config.DefaultConfigPath()
			if err != nil {
				c.settingsErr = usageError(err)
				return
			}
			path = defaultPath
		}

		settings, err := config.Load(path)
		if err != nil {
			c.settingsErr = usageError(err)
			return
		}
		if err := settings.LoadEnv(); err != nil {
			c.settingsErr = usageError(fmt.Errorf("environment: %w", err))
			return
		}
		c.settings = settings
	})
	return c.settings, c.settingsErr
}

func (c *commandContext) verbose() bool {
	return c.verboseFlag != nil && *c.verboseFlag
}

// logger builds the process logger; the verbosity flags win over the
// configured level.
func (c *commandContext) logger(settings *config.Settings) zerolog.Logger {
	level := settings.LogLevel
	switch {
	case c.verbose():
		level = "debug"
	case c.quietFlag != nil && *c.quietFlag:
		level = "warn"
	}

	format := settings.LogFormat
	if c.logFormatFlag != nil && *c.logFormatFlag != "" {
		format = *c.logFormatFlag
	}

	return logging.New(logging.Options{Level: level, Format: format})
}
