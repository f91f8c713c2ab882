package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/common"
	"github.com/Veraticus/backoffice-ledger/internal/model"
)

const importRunColumns = `id, account_range_start, account_range_end, date_from, date_to, status,
	total_count, imported_count, failed_count, created_at, started_at, completed_at`

// CreateImportRun records a new import run in pending status.
func (s *SQLiteStorage) CreateImportRun(ctx context.Context, run *model.ImportRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("%w: import run", ErrNilParameter)
	}

	run.Status = model.RunPending
	run.CreatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO import_runs (account_range_start, account_range_end, date_from, date_to, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.AccountRangeStart, run.AccountRangeEnd, utcPtr(run.DateFrom), utcPtr(run.DateTo), string(run.Status), run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create import run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get import run id: %w", err)
	}
	run.ID = id
	return nil
}

// GetImportRun retrieves an import run by id.
func (s *SQLiteStorage) GetImportRun(ctx context.Context, id int64) (*model.ImportRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getImportRunTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getImportRunTx(ctx context.Context, q queryable, id int64) (*model.ImportRun, error) {
	row := q.QueryRowContext(ctx, `SELECT `+importRunColumns+` FROM import_runs WHERE id = ?`, id)
	run, err := scanImportRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("import run %d: %w", id, common.ErrNotFound)
	}
	return run, err
}

// ListImportRuns returns runs newest first.
func (s *SQLiteStorage) ListImportRuns(ctx context.Context) ([]model.ImportRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+importRunColumns+` FROM import_runs ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query import runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.ImportRun
	for rows.Next() {
		run, err := scanImportRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// MarkImportRunsProcessing flags runs a batch is about to touch. Completed
// runs reopen to processing; started_at keeps its first value.
func (s *SQLiteStorage) MarkImportRunsProcessing(ctx context.Context, ids []int64, startedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	args := append([]any{startedAt.UTC()}, int64Args(ids)...)
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_runs
		SET status = 'processing', started_at = COALESCE(started_at, ?)
		WHERE id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark import runs processing: %w", err)
	}
	return nil
}

// CompleteImportRun stores recomputed counters and marks the run completed.
func (s *SQLiteStorage) CompleteImportRun(ctx context.Context, importRunID int64, counts model.RunCounts, completedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return s.completeImportRunTx(ctx, s.db, importRunID, counts, completedAt)
}

func (s *SQLiteStorage) completeImportRunTx(ctx context.Context, q queryable, importRunID int64, counts model.RunCounts, completedAt time.Time) error {
	result, err := q.ExecContext(ctx, `
		UPDATE import_runs
		SET total_count = ?, imported_count = ?, failed_count = ?, status = 'completed', completed_at = ?
		WHERE id = ?
	`, counts.Total, counts.Processed, counts.Errored, completedAt.UTC(), importRunID)
	if err != nil {
		return fmt.Errorf("failed to complete import run %d: %w", importRunID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check import run update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("import run %d: %w", importRunID, common.ErrNotFound)
	}
	return nil
}

func scanImportRun(row scanner) (*model.ImportRun, error) {
	var run model.ImportRun
	var status string
	var rangeStart, rangeEnd sql.NullString
	var dateFrom, dateTo, startedAt, completedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&rangeStart,
		&rangeEnd,
		&dateFrom,
		&dateTo,
		&status,
		&run.TotalCount,
		&run.ImportedCount,
		&run.FailedCount,
		&run.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan import run: %w", err)
	}

	run.AccountRangeStart = rangeStart.String
	run.AccountRangeEnd = rangeEnd.String
	run.Status = model.RunStatus(status)
	run.DateFrom = timePtr(dateFrom)
	run.DateTo = timePtr(dateTo)
	run.StartedAt = timePtr(startedAt)
	run.CompletedAt = timePtr(completedAt)
	return &run, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
