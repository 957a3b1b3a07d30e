package main

import (
	"github.com/spf13/cobra"
)

func newApplyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Plan and apply every resolved directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				org := newOrganizer(p, nil)
				summary, err := org.PlanAndApply(cmd.Context())
				if err != nil {
					return err
				}
				printSummary(cmd, summary)
				return nil
			})
		},
	}
}
