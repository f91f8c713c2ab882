package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/common"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/Veraticus/backoffice-ledger/internal/service"
)

const stagingColumns = `id, import_run_id, account_id, external_account_id, operation_code,
	operation_external_type, signed_amount, currency, descriptor, raw_payload, review_status,
	import_status, posted_movement_id, error_message, sender_external_account_id,
	receiver_external_account_id, claim_token, claimed_at, created_at`

// SaveStagingMovements inserts staging movements in one transaction and sets
// their ids. New movements start pending review and imported.
func (s *SQLiteStorage) SaveStagingMovements(ctx context.Context, movements []*model.StagingMovement) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(movements) == 0 {
		return nil
	}
	for _, m := range movements {
		if err := validateStagingMovement(m); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO staging_movements (
				import_run_id, account_id, external_account_id, operation_code, operation_external_type,
				signed_amount, currency, descriptor, raw_payload, review_status, import_status,
				sender_external_account_id, receiver_external_account_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, m := range movements {
			if m.ReviewStatus == "" {
				m.ReviewStatus = model.ReviewPending
			}
			m.ImportStatus = model.ImportImported
			m.CreatedAt = m.CreatedAt.UTC()
			m.Currency = strings.ToUpper(m.Currency)

			var accountID sql.NullInt64
			if m.AccountID != 0 {
				accountID = sql.NullInt64{Int64: m.AccountID, Valid: true}
			}
			var code sql.NullString
			var extType sql.NullInt64
			if m.OperationRef.IsInternal() {
				code = sql.NullString{String: m.OperationRef.Code, Valid: true}
			} else {
				extType = sql.NullInt64{Int64: int64(m.OperationRef.ExternalType), Valid: true}
			}

			result, err := stmt.ExecContext(ctx,
				m.ImportRunID,
				accountID,
				m.ExternalAccountID,
				code,
				extType,
				m.SignedAmount,
				m.Currency,
				m.Descriptor,
				m.RawPayload,
				string(m.ReviewStatus),
				string(m.ImportStatus),
				m.SenderExternalAccountID,
				m.ReceiverExternalAccountID,
				m.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert staging movement: %w", err)
			}

			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get staging movement id: %w", err)
			}
			m.ID = id
		}
		return nil
	})
}

// GetStagingMovements returns movements matching filter, oldest first.
func (s *SQLiteStorage) GetStagingMovements(ctx context.Context, filter service.StagingFilter) ([]model.StagingMovement, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	where, args := whereClause(filter)
	query := `SELECT ` + stagingColumns + ` FROM staging_movements` + where + ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query staging movements: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var movements []model.StagingMovement
	for rows.Next() {
		m, err := scanStagingMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staging movements: %w", err)
	}
	return movements, nil
}

// ClaimEligible atomically claims up to limit approved, unposted, imported
// movements for claimToken. A limit of zero or less claims everything eligible.
// Two workers can never claim the same row: the second UPDATE no longer
// matches once the first has flipped its status.
func (s *SQLiteStorage) ClaimEligible(ctx context.Context, claimToken string, claimedAt time.Time, limit int) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(claimToken, "claimToken"); err != nil {
		return 0, err
	}
	if limit <= 0 {
		limit = -1
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE staging_movements
		SET import_status = 'claimed', claim_token = ?, claimed_at = ?
		WHERE id IN (
			SELECT id FROM staging_movements
			WHERE review_status = 'approved'
				AND import_status = 'imported'
				AND posted_movement_id IS NULL
			ORDER BY created_at, id
			LIMIT ?
		)
		AND import_status = 'imported'
		AND posted_movement_id IS NULL
	`, claimToken, claimedAt.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to claim staging movements: %w", err)
	}
	return result.RowsAffected()
}

// ClaimByIDs claims specific movements for a manual re-run. Movements in
// error are claimable again; processed, unapproved or in-flight ones are not.
func (s *SQLiteStorage) ClaimByIDs(ctx context.Context, claimToken string, claimedAt time.Time, ids []int64) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(claimToken, "claimToken"); err != nil {
		return 0, err
	}
	if err := validateIDs(ids); err != nil {
		return 0, err
	}

	args := append([]any{claimToken, claimedAt.UTC()}, int64Args(ids)...)
	result, err := s.db.ExecContext(ctx, `
		UPDATE staging_movements
		SET import_status = 'claimed', claim_token = ?, claimed_at = ?
		WHERE id IN (`+placeholders(len(ids))+`)
			AND review_status = 'approved'
			AND import_status IN ('imported', 'error')
			AND posted_movement_id IS NULL
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to claim staging movements: %w", err)
	}
	return result.RowsAffected()
}

// ReleaseClaims returns claimed movements to imported. With no ids every
// movement still held by claimToken is released.
func (s *SQLiteStorage) ReleaseClaims(ctx context.Context, claimToken string, ids []int64) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(claimToken, "claimToken"); err != nil {
		return 0, err
	}

	query := `
		UPDATE staging_movements
		SET import_status = 'imported', claim_token = NULL, claimed_at = NULL
		WHERE claim_token = ? AND import_status = 'claimed' AND posted_movement_id IS NULL`
	args := []any{claimToken}
	if len(ids) > 0 {
		query += ` AND id IN (` + placeholders(len(ids)) + `)`
		args = append(args, int64Args(ids)...)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to release claims: %w", err)
	}
	return result.RowsAffected()
}

// MarkStagingError records a classified failure and its alert together. It
// fails with common.ErrClaimLost if claimToken no longer holds the movement.
func (s *SQLiteStorage) MarkStagingError(ctx context.Context, stagingID int64, claimToken, message string, alert *model.Alert) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(claimToken, "claimToken"); err != nil {
		return err
	}
	if err := validateString(message, "message"); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE staging_movements
			SET import_status = 'error', error_message = ?
			WHERE id = ? AND claim_token = ? AND import_status = 'claimed' AND posted_movement_id IS NULL
		`, message, stagingID, claimToken)
		if err != nil {
			return fmt.Errorf("failed to mark staging movement %d as error: %w", stagingID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check staging update: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("staging movement %d: %w", stagingID, common.ErrClaimLost)
		}

		if alert == nil {
			return nil
		}
		return insertAlertTx(ctx, tx, alert)
	})
}

// markStagingProcessedTx links the staging movement to its ledger entry. It
// is the at-most-once gate: only the current claim holder of an unposted
// movement can set the posted id.
func (s *SQLiteStorage) markStagingProcessedTx(ctx context.Context, q queryable, stagingID int64, claimToken string, postedMovementID int64) error {
	result, err := q.ExecContext(ctx, `
		UPDATE staging_movements
		SET import_status = 'processed', posted_movement_id = ?, error_message = NULL
		WHERE id = ? AND claim_token = ? AND import_status = 'claimed' AND posted_movement_id IS NULL
	`, postedMovementID, stagingID, claimToken)
	if err != nil {
		return fmt.Errorf("failed to mark staging movement %d as processed: %w", stagingID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check staging update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("staging movement %d: %w", stagingID, common.ErrClaimLost)
	}
	return nil
}

// ReopenStaleClaims returns movements claimed before claimedBefore to
// imported. These are claims abandoned by a worker that died mid-batch.
func (s *SQLiteStorage) ReopenStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE staging_movements
		SET import_status = 'imported', claim_token = NULL, claimed_at = NULL
		WHERE import_status = 'claimed' AND posted_movement_id IS NULL AND claimed_at < ?
	`, claimedBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reopen stale claims: %w", err)
	}
	return result.RowsAffected()
}

// SetReviewStatus records a review decision. Posted and in-flight movements
// keep their status.
func (s *SQLiteStorage) SetReviewStatus(ctx context.Context, ids []int64, status model.ReviewStatus) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateIDs(ids); err != nil {
		return 0, err
	}
	if !status.IsValid() {
		return 0, fmt.Errorf("%w: review status %q", ErrInvalidStatus, status)
	}

	args := append([]any{string(status)}, int64Args(ids)...)
	result, err := s.db.ExecContext(ctx, `
		UPDATE staging_movements
		SET review_status = ?
		WHERE id IN (`+placeholders(len(ids))+`)
			AND posted_movement_id IS NULL
			AND import_status != 'claimed'
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to set review status: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStorage) countStagingByRunTx(ctx context.Context, q queryable, importRunID int64) (model.RunCounts, error) {
	var counts model.RunCounts
	err := q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN import_status = 'processed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN import_status = 'error' THEN 1 ELSE 0 END), 0)
		FROM staging_movements
		WHERE import_run_id = ?
	`, importRunID).Scan(&counts.Total, &counts.Processed, &counts.Errored)
	if err != nil {
		return model.RunCounts{}, fmt.Errorf("failed to count staging movements of run %d: %w", importRunID, err)
	}
	return counts, nil
}

// CountStagingByRun tallies a run's movements by import status.
func (s *SQLiteStorage) CountStagingByRun(ctx context.Context, importRunID int64) (model.RunCounts, error) {
	if err := validateContext(ctx); err != nil {
		return model.RunCounts{}, err
	}
	return s.countStagingByRunTx(ctx, s.db, importRunID)
}

func scanStagingMovement(row scanner) (*model.StagingMovement, error) {
	var m model.StagingMovement
	var (
		accountID    sql.NullInt64
		code         sql.NullString
		extType      sql.NullInt64
		descriptor   sql.NullString
		reviewStatus string
		importStatus string
		postedID     sql.NullInt64
		errorMessage sql.NullString
		sender       sql.NullString
		receiver     sql.NullString
		claimToken   sql.NullString
		claimedAt    sql.NullTime
	)

	err := row.Scan(
		&m.ID,
		&m.ImportRunID,
		&accountID,
		&m.ExternalAccountID,
		&code,
		&extType,
		&m.SignedAmount,
		&m.Currency,
		&descriptor,
		&m.RawPayload,
		&reviewStatus,
		&importStatus,
		&postedID,
		&errorMessage,
		&sender,
		&receiver,
		&claimToken,
		&claimedAt,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan staging movement: %w", err)
	}

	m.AccountID = accountID.Int64
	if code.Valid {
		m.OperationRef = model.InternalRef(code.String)
	} else if extType.Valid {
		m.OperationRef = model.ExternalRef(int(extType.Int64))
	}
	m.Descriptor = descriptor.String
	m.ReviewStatus = model.ReviewStatus(reviewStatus)
	m.ImportStatus = model.ImportStatus(importStatus)
	if postedID.Valid {
		id := postedID.Int64
		m.PostedMovementID = &id
	}
	m.ErrorMessage = errorMessage.String
	if sender.Valid {
		v := sender.String
		m.SenderExternalAccountID = &v
	}
	if receiver.Valid {
		v := receiver.String
		m.ReceiverExternalAccountID = &v
	}
	m.ClaimToken = claimToken.String
	if claimedAt.Valid {
		t := claimedAt.Time
		m.ClaimedAt = &t
	}
	return &m, nil
}
