// Package testutil provides test fixtures for the posting engine. It sets up
// an isolated, migrated SQLite database per test and offers helpers for
// seeding accounts, operation types, import runs and staging movements.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/Veraticus/backoffice-ledger/internal/service"
	"github.com/Veraticus/backoffice-ledger/internal/storage"
	"github.com/shopspring/decimal"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
	seq     int
}

// SetupTestDB creates a new in-memory test database. It automatically
// handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	acct := db.MustCreateAccount("ACC-1", "100.00")
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return setup(t, ":memory:")
}

// SetupFileDB creates a migrated database in a temp directory. Use it when
// more than one storage must share the database.
func SetupFileDB(t *testing.T) (*TestDB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	return setup(t, path), path
}

// OpenTestDB opens another handle on an existing database file.
func OpenTestDB(t *testing.T, path string) *TestDB {
	t.Helper()
	return setup(t, path)
}

func setup(t *testing.T, path string) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// MustCreateAccount creates a USD account with the given available balance.
func (db *TestDB) MustCreateAccount(externalID, available string) *model.Account {
	db.t.Helper()
	return db.MustCreateAccountIn(externalID, "USD", available)
}

// MustCreateAccountIn creates an account in a specific currency.
func (db *TestDB) MustCreateAccountIn(externalID, currency, available string) *model.Account {
	db.t.Helper()
	account := &model.Account{
		ExternalID:       externalID,
		Currency:         currency,
		AvailableBalance: decimal.RequireFromString(available),
	}
	if err := db.Storage.CreateAccount(context.Background(), account); err != nil {
		db.t.Fatalf("failed to create account %s: %v", externalID, err)
	}
	return account
}

// MustGetAccount reloads an account.
func (db *TestDB) MustGetAccount(id int64) *model.Account {
	db.t.Helper()
	account, err := db.Storage.GetAccount(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to get account %d: %v", id, err)
	}
	return account
}

// MustCreateOperationType creates an active operation type whose blocked
// sign is plus.
func (db *TestDB) MustCreateOperationType(code string, availableSign model.Sign, mappings ...model.ExternalTypeMapping) *model.OperationType {
	db.t.Helper()
	opType := &model.OperationType{
		Code:             code,
		Description:      code,
		AvailableSign:    availableSign,
		BlockedSign:      model.SignPlus,
		ExternalMappings: mappings,
		Active:           true,
	}
	if err := db.Storage.CreateOperationType(context.Background(), opType); err != nil {
		db.t.Fatalf("failed to create operation type %s: %v", code, err)
	}
	return opType
}

// MustCreateRun creates an import run.
func (db *TestDB) MustCreateRun() *model.ImportRun {
	db.t.Helper()
	run := &model.ImportRun{AccountRangeStart: "0", AccountRangeEnd: "9"}
	if err := db.Storage.CreateImportRun(context.Background(), run); err != nil {
		db.t.Fatalf("failed to create import run: %v", err)
	}
	return run
}

// MustGetRun reloads an import run.
func (db *TestDB) MustGetRun(id int64) *model.ImportRun {
	db.t.Helper()
	run, err := db.Storage.GetImportRun(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to get import run %d: %v", id, err)
	}
	return run
}

// MustGetStaging reloads a staging movement.
func (db *TestDB) MustGetStaging(id int64) model.StagingMovement {
	db.t.Helper()
	rows, err := db.Storage.GetStagingMovements(context.Background(), service.StagingFilter{IDs: []int64{id}})
	if err != nil {
		db.t.Fatalf("failed to get staging movement %d: %v", id, err)
	}
	if len(rows) != 1 {
		db.t.Fatalf("staging movement %d not found", id)
	}
	return rows[0]
}

// MustListLedger returns an account's ledger entries in posting order.
func (db *TestDB) MustListLedger(accountID int64) []model.LedgerMovement {
	db.t.Helper()
	entries, err := db.Storage.ListLedgerMovements(context.Background(), accountID)
	if err != nil {
		db.t.Fatalf("failed to list ledger of account %d: %v", accountID, err)
	}
	return entries
}

// Stage starts building a staging movement in run. Movements are stamped a
// minute apart in the order they are built.
func (db *TestDB) Stage(run *model.ImportRun) *StagingBuilder {
	db.t.Helper()
	db.seq++
	return &StagingBuilder{
		db: db,
		m: &model.StagingMovement{
			ImportRunID:  run.ID,
			Currency:     "USD",
			ReviewStatus: model.ReviewApproved,
			CreatedAt:    stagingEpoch.Add(time.Duration(db.seq) * time.Minute),
		},
	}
}
