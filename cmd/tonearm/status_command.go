package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tonearm/internal/state"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show directory states and pending work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				dirs, err := p.store.List(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(dirs) == 0 {
					fmt.Fprintln(out, "no directories registered")
					return nil
				}

				counts := map[state.Status]int{}
				rows := make([][]string, 0, len(dirs))
				for _, dir := range dirs {
					counts[dir.Status]++
					note := dir.JailReason
					if dir.NeedsRecovery {
						note = "NEEDS RECOVERY"
					}
					pinned := ""
					if dir.PinnedProvider != "" {
						pinned = dir.PinnedProvider + ":" + dir.PinnedReleaseID
					}
					rows = append(rows, []string{
						shortID(dir.DirID), string(dir.Status), pinned, dir.Path, note,
					})
				}

				fmt.Fprintf(out, "scanned: %d  queued: %d  resolved: %d  jailed: %d  applied: %d\n",
					counts[state.StatusScanned], counts[state.StatusQueued], counts[state.StatusResolved],
					counts[state.StatusJailed], counts[state.StatusApplied])
				fmt.Fprintln(out, renderTable(
					[]string{"DIR ID", "STATUS", "PINNED", "PATH", "NOTE"}, rows, out))
				return nil
			})
		},
	}
}
