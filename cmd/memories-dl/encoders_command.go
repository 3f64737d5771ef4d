package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/handiism/snap-memories/internal/pipeline"
)

func newEncodersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "encoders",
		Short: "List the video encoders usable on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.ensureSettings()
			if err != nil {
				return err
			}

			p := pipeline.New(settings, ctx.logger(settings), nil)
			caps := p.Encoders(cmd.Context())

			out := cmd.OutOrStdout()
			if !settings.UseGPU {
				fmt.Fprintln(out, "Hardware encoding is disabled (use_gpu = false).")
			}
			for i, enc := range caps.Strategies() {
				line := fmt.Sprintf("%d. %s", i+1, enc.Name)
				if enc.Device != "" {
					line += " (" + enc.Device + ")"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
