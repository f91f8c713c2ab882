package main

import (
	"fmt"
	"os"

	"github.com/Veraticus/backoffice-ledger/internal/cli"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/Veraticus/backoffice-ledger/internal/ofx"
	"github.com/Veraticus/backoffice-ledger/internal/service"
	"github.com/spf13/cobra"
)

func stageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Load and inspect staging movements",
	}

	cmd.AddCommand(stageOFXCmd())
	cmd.AddCommand(stageListCmd())
	cmd.AddCommand(stageReviewCmd("approve", model.ReviewApproved))
	cmd.AddCommand(stageReviewCmd("reject", model.ReviewRejected))

	return cmd
}

func stageOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ofx <file>",
		Short: "Stage the lines of an OFX/QFX statement",
		Long: `Stage every line of an OFX/QFX statement under an import run. Each line
references its operation type by the OFX TRNTYPE code, so configure external
mappings for the codes your banks send before posting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetInt64("run")
			approve, _ := cmd.Flags().GetBool("approve")

			store, _, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			if _, err := store.GetImportRun(ctx, runID); err != nil {
				return fmt.Errorf("import run %d: %w", runID, err)
			}

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = file.Close() }()

			n, err := ofx.NewLoader(approve).Load(ctx, store, file, runID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Staged %d movements in import run %d", n, runID)))
			return err
		},
	}

	cmd.Flags().Int64("run", 0, "Import run to stage into (required)")
	cmd.Flags().Bool("approve", false, "Stage movements already approved")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func stageListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staging movements",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runID, _ := cmd.Flags().GetInt64("run")
			statuses, _ := cmd.Flags().GetStringSlice("status")
			limit, _ := cmd.Flags().GetInt("limit")

			filter := service.StagingFilter{Limit: limit}
			if runID > 0 {
				filter.ImportRunID = &runID
			}
			for _, s := range statuses {
				status := model.ImportStatus(s)
				if !status.IsValid() {
					return fmt.Errorf("invalid import status %q", s)
				}
				filter.ImportStatus = append(filter.ImportStatus, status)
			}

			store, _, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			movements, err := store.GetStagingMovements(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return cli.RenderStaging(cmd.OutOrStdout(), movements)
		},
	}

	cmd.Flags().Int64("run", 0, "Only movements of this import run")
	cmd.Flags().StringSlice("status", nil, "Only these import statuses (imported, claimed, processed, error)")
	cmd.Flags().Int("limit", 100, "Maximum movements to list")

	return cmd
}

func stageReviewCmd(use string, status model.ReviewStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: fmt.Sprintf("Mark staging movements %s", status),
		Long: `Set the review status of staging movements. Posted or in-flight movements
are left unchanged.`,
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

			n, err := store.SetReviewStatus(cmd.Context(), ids, status)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("Marked %d of %d movements %s", n, len(ids), status)
			if int(n) < len(ids) {
				msg = cli.FormatWarning(msg + " (the rest are posted, in flight or missing)")
			} else {
				msg = cli.FormatSuccess(msg)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
			return err
		},
	}
}
