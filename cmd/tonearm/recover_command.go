package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Roll back apply transactions interrupted by a crash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				settled, err := p.applier.Recover(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "settled %d interrupted transaction(s)\n", settled)
				return nil
			})
		},
	}
}
