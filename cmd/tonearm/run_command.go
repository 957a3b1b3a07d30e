package main

import (
	"github.com/spf13/cobra"

	"tonearm/internal/decision"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var replayFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one full pipeline pass: recover, identify, decide, plan, apply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				var decider decision.Source
				if replayFlag != "" {
					replay, err := decision.LoadReplay(replayFlag)
					if err != nil {
						return err
					}
					decider = replay
				} else {
					decider = recordingDecider(p)
				}
				org := newOrganizer(p, decider)
				summary, err := org.Run(cmd.Context())
				if err != nil {
					return err
				}
				printSummary(cmd, summary)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&replayFlag, "replay", "", "Replay decisions from this log instead of deciding live")
	return cmd
}
