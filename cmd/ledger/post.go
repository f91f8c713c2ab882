package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/cli"
	"github.com/Veraticus/backoffice-ledger/internal/config"
	"github.com/Veraticus/backoffice-ledger/internal/engine"
	"github.com/Veraticus/backoffice-ledger/internal/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func postCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post approved staging movements",
		Long: `Claim eligible staging movements and post them into the ledger, oldest
first. With --ids only those movements are attempted; movements in error
can be retried this way once their data or configuration is fixed.

The command exits non-zero only when the batch itself fails. Individual
movement failures are reported in the summary and recorded as alerts.`,
		Example: `  ledger post
  ledger post --limit 100
  ledger post --ids 41,42
  ledger post --watch --interval 30s`,
		RunE: runPost,
	}

	cmd.Flags().Int64Slice("ids", nil, "Post only these staging movement ids")
	cmd.Flags().Int("limit", 0, "Maximum movements per batch (default posting.batch_limit)")
	cmd.Flags().Bool("watch", false, "Keep posting on an interval until interrupted")
	cmd.Flags().Duration("interval", 0, "Time between batches with --watch (default posting.interval)")
	cmd.Flags().BoolP("verbose", "v", false, "List processed movements too")
	cmd.Flags().Bool("no-progress", false, "Disable the progress bar")

	_ = viper.BindPFlag(config.KeyBatchLimit, cmd.Flags().Lookup("limit"))
	_ = viper.BindPFlag(config.KeyInterval, cmd.Flags().Lookup("interval"))

	return cmd
}

type poster struct {
	runner   *engine.Runner
	recovery *engine.Recovery
	metrics  *metrics.Metrics
	cfg      *config.Posting
	progress *cli.Progress
	ids      []int64
	verbose  bool
	showBar  bool
}

func runPost(cmd *cobra.Command, _ []string) error {
	ids, _ := cmd.Flags().GetInt64Slice("ids")
	watch, _ := cmd.Flags().GetBool("watch")
	verbose, _ := cmd.Flags().GetBool("verbose")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	store, cfg, err := initStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	p := &poster{
		recovery: engine.NewRecovery(store),
		metrics:  metrics.New(),
		cfg:      cfg,
		ids:      ids,
		verbose:  verbose,
		showBar:  !noProgress,
	}

	runnerCfg := engine.DefaultRunnerConfig()
	runnerCfg.Recorder = p.metrics
	runnerCfg.Poster.Retry.MaxAttempts = cfg.MaxConflictRetries
	runnerCfg.OnItem = p.observe
	p.runner = engine.NewRunnerWithConfig(store, runnerCfg)

	ctx := cli.NewInterruptHandler(os.Stderr).HandleInterrupts(cmd.Context(), watch)

	for {
		if err := p.batch(ctx, cmd); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if !watch {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.Interval):
		}
	}
}

func (p *poster) batch(ctx context.Context, cmd *cobra.Command) error {
	if p.cfg.RecoverAfter > 0 && len(p.ids) == 0 {
		if _, err := p.recovery.Sweep(ctx, p.cfg.RecoverAfter); err != nil {
			return err
		}
	}

	if p.showBar {
		total := -1
		if len(p.ids) > 0 {
			total = len(p.ids)
		}
		p.progress = cli.NewProgress(cmd.ErrOrStderr(), total, "Posting movements...")
	}

	result, err := p.runner.RunBatch(ctx, engine.Selector{IDs: p.ids, Limit: p.cfg.BatchLimit})
	if p.progress != nil {
		p.progress.Finish()
		p.progress = nil
	}

	if result != nil {
		if renderErr := cli.RenderBatch(cmd.OutOrStdout(), result, p.verbose); renderErr != nil {
			slog.Warn("Failed to render batch result", "error", renderErr)
		}
	}
	if writeErr := p.metrics.WriteTextfile(p.cfg.MetricsTextfile); writeErr != nil {
		slog.Warn("Failed to export metrics", "error", writeErr)
	}
	return err
}

func (p *poster) observe(o engine.ItemOutcome) {
	if p.progress != nil {
		p.progress.Observe(o)
	}
}
