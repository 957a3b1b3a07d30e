package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tonearm/internal/organizer"
)

func newIdentifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "identify",
		Short: "Identify scanned directories and queue their candidates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				org := newOrganizer(p, nil)
				summary, err := org.Identify(cmd.Context())
				if err != nil {
					return err
				}
				printSummary(cmd, summary)
				return nil
			})
		},
	}
}

func printSummary(cmd *cobra.Command, summary *organizer.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "recovered: %d  identified: %d  pinned: %d  undecided: %d  jailed: %d  applied: %d\n",
		summary.Recovered, summary.Identified, summary.Pinned, summary.Undecided, summary.Jailed, summary.Applied)
	for _, msg := range summary.Errors {
		fmt.Fprintf(out, "error: %s\n", msg)
	}
}
