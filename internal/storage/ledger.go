package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/backoffice-ledger/internal/common"
	"github.com/Veraticus/backoffice-ledger/internal/model"
)

const ledgerColumns = `id, account_id, operation_type_id, staging_movement_id, signed_amount, currency,
	descriptor, source, posted_at, resultant_available_balance, resultant_blocked_balance, related_movement_id`

func (s *SQLiteStorage) insertLedgerMovementTx(ctx context.Context, q queryable, m *model.LedgerMovement) error {
	if m.Source == "" {
		m.Source = model.SourceStaging
	}
	m.PostedAt = m.PostedAt.UTC()

	var stagingID sql.NullInt64
	if m.StagingMovementID != 0 {
		stagingID = sql.NullInt64{Int64: m.StagingMovementID, Valid: true}
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO ledger_movements (
			account_id, operation_type_id, staging_movement_id, signed_amount, currency, descriptor,
			source, posted_at, resultant_available_balance, resultant_blocked_balance, related_movement_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.AccountID,
		m.OperationTypeID,
		stagingID,
		m.SignedAmount,
		m.Currency,
		m.Descriptor,
		m.Source,
		m.PostedAt,
		m.ResultantAvailableBalance,
		m.ResultantBlockedBalance,
		m.RelatedMovementID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger movement: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get ledger movement id: %w", err)
	}
	m.ID = id
	return nil
}

// linkLedgerMovementsTx points firstID at its transfer counterpart. The
// append-only trigger allows this exactly once per entry.
func (s *SQLiteStorage) linkLedgerMovementsTx(ctx context.Context, q queryable, firstID, secondID int64) error {
	result, err := q.ExecContext(ctx, `
		UPDATE ledger_movements SET related_movement_id = ?
		WHERE id = ? AND related_movement_id IS NULL
	`, secondID, firstID)
	if err != nil {
		return fmt.Errorf("failed to link ledger movements %d and %d: %w", firstID, secondID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check ledger link: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ledger movement %d already linked or missing: %w", firstID, common.ErrNotFound)
	}
	return nil
}

// ListLedgerMovements returns an account's entries in posting order.
func (s *SQLiteStorage) ListLedgerMovements(ctx context.Context, accountID int64) ([]model.LedgerMovement, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_movements WHERE account_id = ? ORDER BY id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger movements: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var movements []model.LedgerMovement
	for rows.Next() {
		m, err := scanLedgerMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, *m)
	}
	return movements, rows.Err()
}

// GetLedgerMovement retrieves a single ledger entry.
func (s *SQLiteStorage) GetLedgerMovement(ctx context.Context, id int64) (*model.LedgerMovement, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_movements WHERE id = ?`, id)
	m, err := scanLedgerMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger movement %d: %w", id, common.ErrNotFound)
	}
	return m, err
}

func scanLedgerMovement(row scanner) (*model.LedgerMovement, error) {
	var m model.LedgerMovement
	var stagingID, relatedID sql.NullInt64
	var descriptor sql.NullString

	err := row.Scan(
		&m.ID,
		&m.AccountID,
		&m.OperationTypeID,
		&stagingID,
		&m.SignedAmount,
		&m.Currency,
		&descriptor,
		&m.Source,
		&m.PostedAt,
		&m.ResultantAvailableBalance,
		&m.ResultantBlockedBalance,
		&relatedID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ledger movement: %w", err)
	}

	m.StagingMovementID = stagingID.Int64
	m.Descriptor = descriptor.String
	if relatedID.Valid {
		id := relatedID.Int64
		m.RelatedMovementID = &id
	}
	return &m, nil
}
