package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/common"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, external_id, currency, available_balance, blocked_balance, version, updated_at`

// CreateAccount inserts an account. Balances start at whatever the caller set.
func (s *SQLiteStorage) CreateAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAccount(account); err != nil {
		return err
	}

	account.UpdatedAt = time.Now().UTC()
	account.Currency = strings.ToUpper(account.Currency)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (external_id, currency, available_balance, blocked_balance, version, updated_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, account.ExternalID, account.Currency, account.AvailableBalance, account.BlockedBalance, account.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("account %s: %w", account.ExternalID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get account id: %w", err)
	}
	account.ID = id
	account.Version = 0
	return nil
}

// ListAccounts returns every account ordered by id.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// GetAccount retrieves an account by internal id.
func (s *SQLiteStorage) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getAccountTx(ctx, s.db, id)
}

// GetAccountByExternalID retrieves an account by processor-assigned id.
func (s *SQLiteStorage) GetAccountByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(externalID, "externalID"); err != nil {
		return nil, err
	}
	return s.getAccountByExternalIDTx(ctx, s.db, externalID)
}

func (s *SQLiteStorage) getAccountTx(ctx context.Context, q queryable, id int64) (*model.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, common.ErrNotFound)
	}
	return account, err
}

func (s *SQLiteStorage) getAccountByExternalIDTx(ctx context.Context, q queryable, externalID string) (*model.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE external_id = ?`, externalID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %q: %w", externalID, common.ErrNotFound)
	}
	return account, err
}

// updateAccountBalancesTx writes new balances only if nobody posted to the
// account since expectedVersion was read.
func (s *SQLiteStorage) updateAccountBalancesTx(ctx context.Context, q queryable, accountID, expectedVersion int64, available, blocked decimal.Decimal) error {
	result, err := q.ExecContext(ctx, `
		UPDATE accounts
		SET available_balance = ?, blocked_balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, available, blocked, time.Now().UTC(), accountID, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update balances of account %d: %w", accountID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check balance update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("account %d at version %d: %w", accountID, expectedVersion, common.ErrStaleBalance)
	}
	return nil
}

func scanAccount(row scanner) (*model.Account, error) {
	var account model.Account
	var updatedAt sql.NullTime

	err := row.Scan(
		&account.ID,
		&account.ExternalID,
		&account.Currency,
		&account.AvailableBalance,
		&account.BlockedBalance,
		&account.Version,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	if updatedAt.Valid {
		account.UpdatedAt = updatedAt.Time
	}
	return &account, nil
}
