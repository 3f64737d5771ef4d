package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/handiism/snap-memories/internal/config"
	"github.com/handiism/snap-memories/internal/pipeline"
	"github.com/handiism/snap-memories/internal/planner"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var flags planFlags

	cmd := &cobra.Command{
		Use:   "plan <export folder | manifest>",
		Short: "Print the actions a run would perform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			settings, err := prepareSettings(ctx, input, func(s *config.Settings) { flags.apply(cmd, s) })
			if err != nil {
				return err
			}

			p := pipeline.New(settings, ctx.logger(settings), nil)
			plan, err := p.Plan(cmd.Context(), input)
			if err != nil {
				return usageError(err)
			}

			out := cmd.OutOrStdout()
			if err := plan.Render(out); err != nil {
				return err
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, planSummary(plan))
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func planSummary(plan *planner.Plan) string {
	counts := plan.CountByKind()
	s := fmt.Sprintf("%d actions", len(plan.Actions))
	for _, kind := range planner.ActionKinds {
		if n := counts[kind]; n > 0 {
			s += fmt.Sprintf(", %d %s", n, kind)
		}
	}
	if len(plan.Skipped) > 0 {
		s += fmt.Sprintf("; %d inputs skipped", len(plan.Skipped))
	}
	return s
}
