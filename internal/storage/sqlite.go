package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/Veraticus/backoffice-ledger/internal/service"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements service.Storage using SQLite.
type SQLiteStorage struct {
	cacheExpiry time.Time
	db          *sql.DB
	opTypeCache []model.OperationType
	dbPath      string
	cacheMutex  sync.RWMutex
}

// opTypeCacheTTL bounds how long active operation types are served from memory.
const opTypeCacheTTL = 30 * time.Second

// NewSQLiteStorage creates a new SQLite storage instance.
//
// Write transactions start with BEGIN IMMEDIATE so two processes sharing the
// file serialize on the write lock before reading balances.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newStorage(db, dbPath), nil
}

func newStorage(db *sql.DB, dbPath string) *SQLiteStorage {
	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
	}
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Tx, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// withTx runs fn inside a transaction, committing on success.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var (
	_ service.Storage = (*SQLiteStorage)(nil)
	_ service.Tx      = (*sqliteTransaction)(nil)
)

// sqliteTransaction wraps sql.Tx to implement service.Tx.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTransaction) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getAccountTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetAccountByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(externalID, "externalID"); err != nil {
		return nil, err
	}
	return t.storage.getAccountByExternalIDTx(ctx, t.tx, externalID)
}

func (t *sqliteTransaction) InsertLedgerMovement(ctx context.Context, movement *model.LedgerMovement) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLedgerMovement(movement); err != nil {
		return err
	}
	return t.storage.insertLedgerMovementTx(ctx, t.tx, movement)
}

func (t *sqliteTransaction) LinkLedgerMovements(ctx context.Context, firstID, secondID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.linkLedgerMovementsTx(ctx, t.tx, firstID, secondID)
}

func (t *sqliteTransaction) UpdateAccountBalances(ctx context.Context, accountID, expectedVersion int64, available, blocked decimal.Decimal) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.updateAccountBalancesTx(ctx, t.tx, accountID, expectedVersion, available, blocked)
}

func (t *sqliteTransaction) MarkStagingProcessed(ctx context.Context, stagingID int64, claimToken string, postedMovementID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(claimToken, "claimToken"); err != nil {
		return err
	}
	return t.storage.markStagingProcessedTx(ctx, t.tx, stagingID, claimToken, postedMovementID)
}

func (t *sqliteTransaction) CountStagingByRun(ctx context.Context, importRunID int64) (model.RunCounts, error) {
	if err := validateContext(ctx); err != nil {
		return model.RunCounts{}, err
	}
	return t.storage.countStagingByRunTx(ctx, t.tx, importRunID)
}

func (t *sqliteTransaction) CompleteImportRun(ctx context.Context, importRunID int64, counts model.RunCounts, completedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return t.storage.completeImportRunTx(ctx, t.tx, importRunID, counts, completedAt)
}

func (t *sqliteTransaction) GetImportRun(ctx context.Context, id int64) (*model.ImportRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.getImportRunTx(ctx, t.tx, id)
}

// queryable is an interface satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
