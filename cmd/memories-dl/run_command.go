package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/handiism/snap-memories/internal/config"
	"github.com/handiism/snap-memories/internal/pipeline"
	"github.com/handiism/snap-memories/internal/report"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <export folder | manifest>",
		Short: "Rebuild the memories of an export",
		Long: `Rebuild the memories of an export.

The input is either an unpacked export folder or its memories_history
manifest. Overlays are composited onto their photos and videos, capture
times and locations are written into every finished file, and remote
memories listed in a manifest are downloaded first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			settings, err := prepareSettings(ctx, input, func(s *config.Settings) { flags.apply(cmd, s) })
			if err != nil {
				return err
			}

			runCtx, stop := withInterrupt(cmd.Context(), cmd.ErrOrStderr())
			defer stop()

			log := ctx.logger(settings)
			printer := newProgressPrinter(cmd.ErrOrStderr(), ctx.verbose(), settings.DryRun)
			p := pipeline.New(settings, log, printer.handle)

			plan, err := p.Plan(runCtx, input)
			if err != nil {
				return usageError(err)
			}
			if len(plan.Actions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do.")
			}

			stats, err := p.Run(runCtx, plan)
			printer.finish()
			if err != nil {
				if errors.Is(err, pipeline.ErrLocked) {
					return usageError(fmt.Errorf("%w: %s", err, plan.OutputDir))
				}
				return usageError(err)
			}

			if err := report.Write(cmd.OutOrStdout(), stats); err != nil {
				return err
			}

			switch {
			case stats.Cancelled:
				return &exitError{code: exitInterrupt}
			case stats.Failed():
				return &exitError{code: exitFailures}
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

// prepareSettings copies the loaded settings, applies command flags and
// checks the result against input.
func prepareSettings(ctx *commandContext, input string, apply func(*config.Settings)) (*config.Settings, error) {
	loaded, err := ctx.ensureSettings()
	if err != nil {
		return nil, err
	}
	settings := *loaded
	apply(&settings)

	if settings.OutputDir == "" {
		settings.OutputDir = config.DefaultOutputDir(input)
	}
	if err := settings.Validate(); err != nil {
		return nil, usageError(fmt.Errorf("invalid configuration: %w", err))
	}
	if err := settings.CheckInput(input); err != nil {
		return nil, usageError(err)
	}
	if _, err := os.Stat(input); err != nil {
		return nil, usageError(fmt.Errorf("input: %w", err))
	}
	return &settings, nil
}

// withInterrupt cancels the returned context on SIGINT or SIGTERM. Actions
// already running finish; the rest are skipped.
func withInterrupt(parent context.Context, out io.Writer) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(out, "\nInterrupted, finishing running actions...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
