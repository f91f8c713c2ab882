// Package service defines the persistence contracts of the posting engine.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/shopspring/decimal"
)

// StagingFilter selects staging movements. Empty fields do not constrain.
type StagingFilter struct {
	ImportRunID   *int64
	ClaimedBefore *time.Time
	ClaimToken    string
	IDs           []int64
	ReviewStatus  []model.ReviewStatus
	ImportStatus  []model.ImportStatus
	Limit         int
	Unposted      bool
}

// AccountReader resolves accounts.
type AccountReader interface {
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	GetAccountByExternalID(ctx context.Context, externalID string) (*model.Account, error)
}

// OperationTypeReader reads operation type configuration.
type OperationTypeReader interface {
	GetActiveOperationTypes(ctx context.Context) ([]model.OperationType, error)
}

// LedgerWriter holds the writes of one posting. Every method is conditional;
// a lost race returns common.ErrStaleBalance or common.ErrClaimLost.
type LedgerWriter interface {
	InsertLedgerMovement(ctx context.Context, movement *model.LedgerMovement) error
	LinkLedgerMovements(ctx context.Context, firstID, secondID int64) error
	UpdateAccountBalances(ctx context.Context, accountID, expectedVersion int64, available, blocked decimal.Decimal) error
	MarkStagingProcessed(ctx context.Context, stagingID int64, claimToken string, postedMovementID int64) error
}

// RunCounter tallies and closes import runs.
type RunCounter interface {
	CountStagingByRun(ctx context.Context, importRunID int64) (model.RunCounts, error)
	CompleteImportRun(ctx context.Context, importRunID int64, counts model.RunCounts, completedAt time.Time) error
	GetImportRun(ctx context.Context, id int64) (*model.ImportRun, error)
}

// Tx is a storage transaction: every write inside commits or none does.
type Tx interface {
	AccountReader
	LedgerWriter
	RunCounter
	Commit() error
	Rollback() error
}

// Storage defines the contract for the persistence layer.
type Storage interface {
	AccountReader
	OperationTypeReader
	RunCounter

	// Accounts
	CreateAccount(ctx context.Context, account *model.Account) error
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// Operation types
	CreateOperationType(ctx context.Context, opType *model.OperationType) error
	ListOperationTypes(ctx context.Context) ([]model.OperationType, error)

	// Staging movements
	SaveStagingMovements(ctx context.Context, movements []*model.StagingMovement) error
	GetStagingMovements(ctx context.Context, filter StagingFilter) ([]model.StagingMovement, error)
	ClaimEligible(ctx context.Context, claimToken string, claimedAt time.Time, limit int) (int64, error)
	ClaimByIDs(ctx context.Context, claimToken string, claimedAt time.Time, ids []int64) (int64, error)
	ReleaseClaims(ctx context.Context, claimToken string, ids []int64) (int64, error)
	MarkStagingError(ctx context.Context, stagingID int64, claimToken, message string, alert *model.Alert) error
	ReopenStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error)
	SetReviewStatus(ctx context.Context, ids []int64, status model.ReviewStatus) (int64, error)

	// Ledger and alerts
	ListLedgerMovements(ctx context.Context, accountID int64) ([]model.LedgerMovement, error)
	GetLedgerMovement(ctx context.Context, id int64) (*model.LedgerMovement, error)
	ListAlerts(ctx context.Context, importRunID int64) ([]model.Alert, error)

	// Import runs
	CreateImportRun(ctx context.Context, run *model.ImportRun) error
	ListImportRuns(ctx context.Context) ([]model.ImportRun, error)
	MarkImportRunsProcessing(ctx context.Context, ids []int64, startedAt time.Time) error

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Tx, error)
	Close() error
}
