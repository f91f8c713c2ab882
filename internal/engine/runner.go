package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/common"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/Veraticus/backoffice-ledger/internal/service"
	"github.com/google/uuid"
)

// OutcomeStatus is what happened to one staging movement in a batch.
type OutcomeStatus string

// Outcome statuses.
const (
	OutcomeProcessed OutcomeStatus = "processed"
	OutcomeError     OutcomeStatus = "error"
	OutcomeConflict  OutcomeStatus = "conflict"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeNotFound  OutcomeStatus = "not_found"
)

// Selector chooses what a batch posts. With IDs set only those movements are
// considered (manual retry); otherwise every eligible movement is, oldest
// first, up to Limit when positive.
type Selector struct {
	IDs   []int64
	Limit int
}

// ItemOutcome reports one movement's result.
type ItemOutcome struct {
	Status           OutcomeStatus
	Code             common.ErrorCode
	Message          string
	StagingID        int64
	ImportRunID      int64
	PostedMovementID int64
}

// BatchResult summarizes a batch.
type BatchResult struct {
	ClaimToken     string
	Outcomes       []ItemOutcome
	RunIDs         []int64
	Duration       time.Duration
	ClaimedCount   int
	ProcessedCount int
	ErrorCount     int
	ConflictCount  int
	SkippedCount   int
	NotFoundCount  int
}

func (r *BatchResult) add(o ItemOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case OutcomeProcessed:
		r.ProcessedCount++
	case OutcomeError:
		r.ErrorCount++
	case OutcomeConflict:
		r.ConflictCount++
	case OutcomeSkipped:
		r.SkippedCount++
	case OutcomeNotFound:
		r.NotFoundCount++
	}
}

// RunnerConfig holds configuration options for the batch runner.
type RunnerConfig struct {
	Recorder Recorder
	OnItem   func(ItemOutcome)
	NewToken func() string
	Poster   PosterConfig
}

// DefaultRunnerConfig returns the default configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Recorder: noopRecorder{},
		NewToken: uuid.NewString,
		Poster:   DefaultPosterConfig(),
	}
}

// Runner claims and posts batches of staging movements.
type Runner struct {
	store      service.Storage
	registry   *Registry
	poster     *Poster
	aggregator *Aggregator
	recorder   Recorder
	onItem     func(ItemOutcome)
	newToken   func() string
	now        func() time.Time
}

// NewRunner creates a runner with the default configuration.
func NewRunner(store service.Storage) *Runner {
	return NewRunnerWithConfig(store, DefaultRunnerConfig())
}

// NewRunnerWithConfig creates a runner with custom configuration.
func NewRunnerWithConfig(store service.Storage, config RunnerConfig) *Runner {
	if config.Recorder == nil {
		config.Recorder = noopRecorder{}
	}
	if config.NewToken == nil {
		config.NewToken = uuid.NewString
	}
	if config.Poster.Now == nil {
		config.Poster.Now = time.Now
	}

	registry := NewRegistry(store)
	aggregator := NewAggregator(store)
	aggregator.now = config.Poster.Now
	aggregator.recorder = config.Recorder

	return &Runner{
		store:      store,
		registry:   registry,
		poster:     NewPoster(store, registry, config.Poster),
		aggregator: aggregator,
		recorder:   config.Recorder,
		onItem:     config.OnItem,
		newToken:   config.NewToken,
		now:        config.Poster.Now,
	}
}

// RunBatch claims the selected movements and posts them one at a time, in
// creation order. A failing movement is recorded and the batch moves on.
// Touched import runs are finalized at the end; the returned error is set
// only when the batch itself could not run or finalize.
func (r *Runner) RunBatch(ctx context.Context, sel Selector) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{ClaimToken: r.newToken()}

	if err := r.registry.Load(ctx); err != nil {
		return result, err
	}

	claimed, err := r.claim(ctx, sel, result)
	if err != nil {
		return result, err
	}
	result.ClaimedCount = len(claimed)
	result.RunIDs = runIDs(claimed)

	slog.Debug("Claimed staging movements",
		"claim_token", result.ClaimToken,
		"claimed", len(claimed),
		"import_runs", len(result.RunIDs))

	if len(result.RunIDs) > 0 {
		if err := r.aggregator.MarkProcessing(ctx, result.RunIDs); err != nil {
			r.releaseAll(ctx, result.ClaimToken)
			return result, err
		}
	}

	var loopErr error
	for i := range claimed {
		if err := ctx.Err(); err != nil {
			loopErr = err
			break
		}

		outcome := r.process(ctx, &claimed[i])
		if outcome.Status == "" {
			// Interrupted, not judged.
			loopErr = ctx.Err()
			break
		}
		r.emit(result, outcome)
	}

	if loopErr != nil {
		released := r.releaseAll(ctx, result.ClaimToken)
		slog.Warn("Batch interrupted, released remaining claims",
			"claim_token", result.ClaimToken,
			"released", released,
			"error", loopErr)
	}

	// Counters stay consistent even when the caller gave up.
	if err := r.aggregator.FinalizeAll(context.WithoutCancel(ctx), result.RunIDs); err != nil {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("failed to finalize import runs: %w", err)
	}

	result.Duration = time.Since(start)
	r.recorder.RecordBatch(result.Duration, result.ClaimedCount)

	slog.Info("Batch complete",
		"claimed", result.ClaimedCount,
		"processed", result.ProcessedCount,
		"errors", result.ErrorCount,
		"conflicts", result.ConflictCount,
		"skipped", result.SkippedCount,
		"not_found", result.NotFoundCount,
		"import_runs", len(result.RunIDs),
		"duration", result.Duration)

	return result, loopErr
}

// claim takes ownership of the movements to post and returns them oldest
// first. For explicit ids, movements that cannot be claimed get an outcome
// explaining why.
func (r *Runner) claim(ctx context.Context, sel Selector, result *BatchResult) ([]model.StagingMovement, error) {
	claimedAt := r.now()

	if len(sel.IDs) == 0 {
		if _, err := r.store.ClaimEligible(ctx, result.ClaimToken, claimedAt, sel.Limit); err != nil {
			return nil, err
		}
		return r.store.GetStagingMovements(ctx, service.StagingFilter{
			ClaimToken:   result.ClaimToken,
			ImportStatus: []model.ImportStatus{model.ImportClaimed},
		})
	}

	ids := dedupe(sel.IDs)
	if _, err := r.store.ClaimByIDs(ctx, result.ClaimToken, claimedAt, ids); err != nil {
		return nil, err
	}

	rows, err := r.store.GetStagingMovements(ctx, service.StagingFilter{IDs: ids})
	if err != nil {
		r.releaseAll(ctx, result.ClaimToken)
		return nil, err
	}

	found := make(map[int64]bool, len(rows))
	var claimed []model.StagingMovement
	for _, m := range rows {
		found[m.ID] = true
		if m.ImportStatus == model.ImportClaimed && m.ClaimToken == result.ClaimToken {
			claimed = append(claimed, m)
			continue
		}
		r.emit(result, unclaimedOutcome(m))
	}
	for _, id := range ids {
		if !found[id] {
			r.emit(result, ItemOutcome{
				StagingID: id,
				Status:    OutcomeNotFound,
				Message:   "no such staging movement",
			})
		}
	}
	return claimed, nil
}

func unclaimedOutcome(m model.StagingMovement) ItemOutcome {
	o := ItemOutcome{StagingID: m.ID, ImportRunID: m.ImportRunID}
	switch {
	case m.IsPosted():
		o.Status = OutcomeSkipped
		o.PostedMovementID = *m.PostedMovementID
		o.Message = "already posted"
	case m.ImportStatus == model.ImportClaimed:
		o.Status = OutcomeConflict
		o.Code = common.CodePostingConflict
		o.Message = "claimed by another worker"
	default:
		o.Status = OutcomeSkipped
		o.Message = fmt.Sprintf("review status is %s", m.ReviewStatus)
	}
	return o
}

// process posts one movement. Any error or panic becomes that movement's
// outcome and never escapes. The status is empty if ctx ended mid-post.
func (r *Runner) process(ctx context.Context, m *model.StagingMovement) (outcome ItemOutcome) {
	outcome = ItemOutcome{StagingID: m.ID, ImportRunID: m.ImportRunID}

	postedID, err := r.safePost(ctx, m)
	if err == nil {
		outcome.Status = OutcomeProcessed
		outcome.PostedMovementID = postedID
		return outcome
	}

	outcome.Code = common.CodeOf(err)
	outcome.Message = err.Error()

	if ctx.Err() != nil {
		return outcome
	}

	if common.IsConflict(err) {
		outcome.Status = OutcomeConflict
		outcome.Code = common.CodePostingConflict
		if _, relErr := r.store.ReleaseClaims(ctx, m.ClaimToken, []int64{m.ID}); relErr != nil {
			slog.Warn("Failed to release conflicted claim",
				"staging_id", m.ID,
				"error", relErr)
		}
		return outcome
	}

	outcome.Status = OutcomeError
	slog.Warn("Staging movement failed to post",
		"staging_id", m.ID,
		"import_run_id", m.ImportRunID,
		"error_code", outcome.Code,
		"error", err)

	if rejErr := r.poster.Reject(ctx, m, err); rejErr != nil {
		if errors.Is(rejErr, common.ErrClaimLost) {
			outcome.Status = OutcomeConflict
			outcome.Code = common.CodePostingConflict
			return outcome
		}
		common.LogError(ctx, rejErr, "Failed to record posting failure", common.Fields{
			"staging_id": m.ID,
		})
	}
	return outcome
}

func (r *Runner) safePost(ctx context.Context, m *model.StagingMovement) (postedID int64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = common.NewPostingError(common.CodeInternal, m.ID, "panic while posting: %v", p)
		}
	}()
	return r.poster.Post(ctx, m)
}

func (r *Runner) emit(result *BatchResult, o ItemOutcome) {
	result.add(o)
	r.recorder.RecordOutcome(string(o.Status), string(o.Code))
	if r.onItem != nil {
		r.onItem(o)
	}
}

func (r *Runner) releaseAll(ctx context.Context, token string) int64 {
	released, err := r.store.ReleaseClaims(context.WithoutCancel(ctx), token, nil)
	if err != nil {
		slog.Error("Failed to release claims", "claim_token", token, "error", err)
	}
	return released
}

func runIDs(movements []model.StagingMovement) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, m := range movements {
		if !seen[m.ImportRunID] {
			seen[m.ImportRunID] = true
			ids = append(ids, m.ImportRunID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
