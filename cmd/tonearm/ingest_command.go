package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tonearm/internal/evidence"
	"tonearm/internal/faults"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <evidence.json> [more...]",
		Short: "Register directory evidence from scanner export files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline) error {
				rows := make([][]string, 0, len(args))
				for _, path := range args {
					dirs, err := readEvidenceFile(path)
					if err != nil {
						return err
					}
					for _, ev := range dirs {
						dir, err := p.store.RegisterEvidence(cmd.Context(), ev)
						if err != nil {
							return fmt.Errorf("%s: %w", path, err)
						}
						rows = append(rows, []string{dir.DirID, string(dir.Status), dir.Path})
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"DIR ID", "STATUS", "PATH"}, rows, cmd.OutOrStdout()))
				return nil
			})
		},
	}
}

// readEvidenceFile accepts either one directory document or an array of them.
func readEvidenceFile(path string) ([]*evidence.DirEvidence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read evidence file: %w", err)
	}
	var many []*evidence.DirEvidence
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one evidence.DirEvidence
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "ingest", "parse evidence",
			fmt.Sprintf("%s is neither a directory document nor an array of them", path), err)
	}
	return []*evidence.DirEvidence{&one}, nil
}
