package main

import (
	"fmt"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/cli"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage import runs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List import runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.ListImportRuns(cmd.Context())
			if err != nil {
				return err
			}
			return cli.RenderImportRuns(cmd.OutOrStdout(), runs)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <runID>",
		Short: "Show an import run and its alerts",
		Args:  cobra.ExactArgs(1),
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
			run, err := store.GetImportRun(ctx, ids[0])
			if err != nil {
				return err
			}
			alerts, err := store.ListAlerts(ctx, run.ID)
			if err != nil {
				return err
			}
			if err := cli.RenderImportRuns(cmd.OutOrStdout(), []model.ImportRun{*run}); err != nil {
				return err
			}
			return cli.RenderAlerts(cmd.OutOrStdout(), alerts)
		},
	})

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an import run to stage movements into",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rangeStart, _ := cmd.Flags().GetString("accounts-from")
			rangeEnd, _ := cmd.Flags().GetString("accounts-to")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")

			run := &model.ImportRun{AccountRangeStart: rangeStart, AccountRangeEnd: rangeEnd}
			var err error
			if run.DateFrom, err = parseDate(from); err != nil {
				return err
			}
			if run.DateTo, err = parseDate(to); err != nil {
				return err
			}
			if run.DateFrom != nil && run.DateTo != nil && run.DateTo.Before(*run.DateFrom) {
				return fmt.Errorf("--to %s is before --from %s", to, from)
			}

			store, _, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.CreateImportRun(cmd.Context(), run); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created import run %d", run.ID)))
			return err
		},
	}
	create.Flags().String("accounts-from", "", "First account of the imported range")
	create.Flags().String("accounts-to", "", "Last account of the imported range")
	create.Flags().String("from", "", "Start date (YYYY-MM-DD)")
	create.Flags().String("to", "", "End date (YYYY-MM-DD)")
	cmd.AddCommand(create)

	return cmd
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return &t, nil
}
