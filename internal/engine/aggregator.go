package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/Veraticus/backoffice-ledger/internal/service"
	"golang.org/x/sync/errgroup"
)

// defaultFinalizeParallelism bounds concurrent finalizations. SQLite
// serializes writers anyway; this only overlaps the reads.
const defaultFinalizeParallelism = 4

// Aggregator recomputes import run counters from staging state.
type Aggregator struct {
	store       service.Storage
	recorder    Recorder
	now         func() time.Time
	parallelism int
}

// NewAggregator creates an aggregator.
func NewAggregator(store service.Storage) *Aggregator {
	return &Aggregator{
		store:       store,
		recorder:    noopRecorder{},
		now:         time.Now,
		parallelism: defaultFinalizeParallelism,
	}
}

// MarkProcessing flags runs a batch is about to post into.
func (a *Aggregator) MarkProcessing(ctx context.Context, runIDs []int64) error {
	if err := a.store.MarkImportRunsProcessing(ctx, runIDs, a.now()); err != nil {
		return fmt.Errorf("failed to mark import runs processing: %w", err)
	}
	return nil
}

// Finalize recounts a run's staging movements and marks it completed.
// Counters are recomputed, never incremented, so repeated calls agree.
func (a *Aggregator) Finalize(ctx context.Context, runID int64) (*model.ImportRun, error) {
	tx, err := a.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	counts, err := tx.CountStagingByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := tx.CompleteImportRun(ctx, runID, counts, a.now()); err != nil {
		return nil, err
	}
	run, err := tx.GetImportRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run %d: %w", runID, err)
	}

	a.recorder.RecordRunFinalized()
	slog.Info("Finalized import run",
		"import_run_id", runID,
		"total", counts.Total,
		"imported", counts.Processed,
		"failed", counts.Errored)
	return run, nil
}

// FinalizeAll finalizes every run. The first failure is returned.
func (a *Aggregator) FinalizeAll(ctx context.Context, runIDs []int64) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)

	for _, id := range runIDs {
		id := id
		g.Go(func() error {
			if _, err := a.Finalize(ctx, id); err != nil {
				return fmt.Errorf("run %d: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
