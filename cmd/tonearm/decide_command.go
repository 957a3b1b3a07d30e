package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tonearm/internal/decision"
)

func newDecideCommand(ctx *commandContext) *cobra.Command {
	decideCmd := &cobra.Command{
		Use:   "decide",
		Short: "Resolve queued directories with pin decisions",
	}
	decideCmd.AddCommand(newDecideAutoCommand(ctx))
	decideCmd.AddCommand(newDecideReplayCommand(ctx))
	decideCmd.AddCommand(newDecidePinCommand(ctx))
	decideCmd.AddCommand(newDecideJailCommand(ctx))
	decideCmd.AddCommand(newDecideRequeueCommand(ctx))
	return decideCmd
}

func newDecideAutoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "auto",
		Short: "Pin candidates above the auto-pin threshold, recording each decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				org := newOrganizer(p, recordingDecider(p))
				summary, err := org.Decide(cmd.Context())
				if err != nil {
					return err
				}
				printSummary(cmd, summary)
				return nil
			})
		},
	}
}

func newDecideReplayCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <decision-log>",
		Short: "Replay a recorded decision log against queued directories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				replay, err := decision.LoadReplay(args[0])
				if err != nil {
					return err
				}
				org := newOrganizer(p, replay)
				summary, err := org.Decide(cmd.Context())
				if err != nil {
					return err
				}
				printSummary(cmd, summary)
				return nil
			})
		},
	}
}

func newDecidePinCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pin <dir-id> <provider> <release-id>",
		Short: "Pin a release for one directory and record the decision",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				dirID, provider, releaseID := args[0], args[1], args[2]
				dir, err := p.store.GetByID(cmd.Context(), dirID)
				if err != nil {
					return err
				}
				if err := p.store.MarkResolved(cmd.Context(), dirID, dir.SettingsHash, provider, releaseID); err != nil {
					return err
				}
				verdict := decision.Verdict{Provider: provider, ReleaseID: releaseID}
				if err := decision.Append(p.cfg.DecisionLogPath(), dirID, dir.EvidenceFingerprint, verdict, nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pinned %s to %s:%s\n", shortID(dirID), provider, releaseID)
				return nil
			})
		},
	}
}

func newDecideJailCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jail <dir-id> <reason...>",
		Short: "Park a directory for manual attention and record the decision",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				dirID := args[0]
				reason := strings.Join(args[1:], " ")
				dir, err := p.store.GetByID(cmd.Context(), dirID)
				if err != nil {
					return err
				}
				if err := p.store.MarkJailed(cmd.Context(), dirID, reason); err != nil {
					return err
				}
				verdict := decision.Verdict{Jail: true, JailReason: reason}
				if err := decision.Append(p.cfg.DecisionLogPath(), dirID, dir.EvidenceFingerprint, verdict, nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "jailed %s: %s\n", shortID(dirID), reason)
				return nil
			})
		},
	}
}

func newDecideRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <dir-id>",
		Short: "Send a directory back to scanned for fresh identification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				if err := p.store.Requeue(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", shortID(args[0]))
				return nil
			})
		},
	}
}
