package main

import (
	"fmt"

	"github.com/Veraticus/backoffice-ledger/internal/cli"
	"github.com/Veraticus/backoffice-ledger/internal/engine"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/spf13/cobra"
)

func finalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <runID>...",
		Short: "Recompute import run counters",
		Long: `Recount each import run's staging movements and mark the run completed.
Counters are recomputed from staging state, so running this again is safe.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			store, _, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if err := engine.NewAggregator(store).FinalizeAll(ctx, ids); err != nil {
				return fmt.Errorf("failed to finalize import runs: %w", err)
			}

			runs := make([]model.ImportRun, 0, len(ids))
			for _, id := range ids {
				run, err := store.GetImportRun(ctx, id)
				if err != nil {
					return err
				}
				runs = append(runs, *run)
			}
			return cli.RenderImportRuns(cmd.OutOrStdout(), runs)
		},
	}
}
