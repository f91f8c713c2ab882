package main

import (
	"fmt"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/cli"
	"github.com/Veraticus/backoffice-ledger/internal/engine"
	"github.com/spf13/cobra"
)

func recoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Reopen claims abandoned by stopped workers",
		Long: `Return movements that have sat claimed for longer than --older-than to the
eligible pool. Use a threshold well above the longest batch you run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")

			store, cfg, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if !cmd.Flags().Changed("older-than") && cfg.RecoverAfter > 0 {
				olderThan = cfg.RecoverAfter
			}

			reopened, err := engine.NewRecovery(store).Sweep(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Reopened %d stale claims", reopened)))
			return err
		},
	}

	cmd.Flags().Duration("older-than", 15*time.Minute, "Claims older than this are reopened (default posting.recover_after)")

	return cmd
}
