package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Plan resolved directories without touching any files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				org := newOrganizer(p, nil)
				plans, err := org.PreviewPlans(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(plans) == 0 {
					fmt.Fprintln(out, "nothing to plan")
					return nil
				}
				for _, pl := range plans {
					fmt.Fprintf(out, "%s  %s - %s (%s:%s)  plan %s\n",
						shortID(pl.DirID), pl.Artist, pl.Album, pl.Provider, pl.ReleaseID, shortID(pl.Hash))
					rows := make([][]string, 0, len(pl.Tracks))
					for _, track := range pl.Tracks {
						target := track.TargetRelPath
						if track.Skipped {
							target = "(skipped: " + track.SkipReason + ")"
						}
						rows = append(rows, []string{track.SourcePath, target})
					}
					fmt.Fprintln(out, renderTable([]string{"SOURCE", "TARGET"}, rows, out))
				}
				return nil
			})
		},
	}
}
