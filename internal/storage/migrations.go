package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS accounts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					external_id TEXT UNIQUE NOT NULL,
					currency TEXT NOT NULL,
					available_balance TEXT NOT NULL DEFAULT '0',
					blocked_balance TEXT NOT NULL DEFAULT '0',
					version INTEGER NOT NULL DEFAULT 0,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS operation_types (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					code TEXT NOT NULL,
					description TEXT DEFAULT '',
					available_sign TEXT NOT NULL CHECK (available_sign IN ('+', '-')),
					blocked_sign TEXT NOT NULL CHECK (blocked_sign IN ('+', '-')),
					active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_operation_types_code ON operation_types(code)`,

				`CREATE TABLE IF NOT EXISTS operation_type_mappings (
					operation_type_id INTEGER NOT NULL,
					external_code INTEGER NOT NULL,
					direction TEXT NOT NULL CHECK (direction IN ('in', 'out')),
					PRIMARY KEY (operation_type_id, external_code, direction),
					FOREIGN KEY (operation_type_id) REFERENCES operation_types(id)
				)`,
				`CREATE INDEX idx_operation_type_mappings_lookup ON operation_type_mappings(external_code, direction)`,

				`CREATE TABLE IF NOT EXISTS import_runs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					account_range_start TEXT DEFAULT '',
					account_range_end TEXT DEFAULT '',
					date_from DATETIME,
					date_to DATETIME,
					status TEXT NOT NULL DEFAULT 'pending',
					total_count INTEGER NOT NULL DEFAULT 0,
					imported_count INTEGER NOT NULL DEFAULT 0,
					failed_count INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					started_at DATETIME,
					completed_at DATETIME
				)`,

				`CREATE TABLE IF NOT EXISTS staging_movements (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					import_run_id INTEGER NOT NULL,
					account_id INTEGER,
					external_account_id TEXT NOT NULL DEFAULT '',
					operation_code TEXT,
					operation_external_type INTEGER,
					signed_amount TEXT NOT NULL,
					currency TEXT NOT NULL,
					descriptor TEXT DEFAULT '',
					raw_payload BLOB,
					review_status TEXT NOT NULL DEFAULT 'pending',
					import_status TEXT NOT NULL DEFAULT 'imported',
					posted_movement_id INTEGER,
					error_message TEXT,
					sender_external_account_id TEXT,
					receiver_external_account_id TEXT,
					created_at DATETIME NOT NULL,
					CHECK ((operation_code IS NULL) != (operation_external_type IS NULL)),
					FOREIGN KEY (import_run_id) REFERENCES import_runs(id)
				)`,
				`CREATE INDEX idx_staging_movements_run ON staging_movements(import_run_id)`,
				`CREATE INDEX idx_staging_movements_eligible ON staging_movements(review_status, import_status, created_at)`,

				`CREATE TABLE IF NOT EXISTS ledger_movements (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					account_id INTEGER NOT NULL,
					operation_type_id INTEGER NOT NULL,
					staging_movement_id INTEGER,
					signed_amount TEXT NOT NULL,
					currency TEXT NOT NULL,
					descriptor TEXT DEFAULT '',
					source TEXT NOT NULL,
					posted_at DATETIME NOT NULL,
					resultant_available_balance TEXT NOT NULL,
					resultant_blocked_balance TEXT NOT NULL,
					related_movement_id INTEGER,
					FOREIGN KEY (account_id) REFERENCES accounts(id),
					FOREIGN KEY (operation_type_id) REFERENCES operation_types(id),
					FOREIGN KEY (related_movement_id) REFERENCES ledger_movements(id)
				)`,
				`CREATE INDEX idx_ledger_movements_account ON ledger_movements(account_id, id)`,

				`CREATE TABLE IF NOT EXISTS alerts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					import_run_id INTEGER,
					staging_movement_id INTEGER,
					alert_type TEXT NOT NULL,
					message TEXT NOT NULL,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_alerts_run ON alerts(import_run_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Enforce append-only ledger and at-most-once posting",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TRIGGER ledger_movements_no_delete
				BEFORE DELETE ON ledger_movements
				BEGIN
					SELECT RAISE(ABORT, 'ledger movements are append-only');
				END`,
				// The only permitted update links a transfer pair, once.
				`CREATE TRIGGER ledger_movements_no_update
				BEFORE UPDATE ON ledger_movements
				WHEN OLD.related_movement_id IS NOT NULL
					OR NEW.id IS NOT OLD.id
					OR NEW.account_id IS NOT OLD.account_id
					OR NEW.operation_type_id IS NOT OLD.operation_type_id
					OR NEW.signed_amount IS NOT OLD.signed_amount
					OR NEW.posted_at IS NOT OLD.posted_at
					OR NEW.resultant_available_balance IS NOT OLD.resultant_available_balance
					OR NEW.resultant_blocked_balance IS NOT OLD.resultant_blocked_balance
				BEGIN
					SELECT RAISE(ABORT, 'ledger movements are append-only');
				END`,
				`CREATE TRIGGER alerts_no_update
				BEFORE UPDATE ON alerts
				BEGIN
					SELECT RAISE(ABORT, 'alerts are append-only');
				END`,
				`CREATE TRIGGER alerts_no_delete
				BEFORE DELETE ON alerts
				BEGIN
					SELECT RAISE(ABORT, 'alerts are append-only');
				END`,
				`CREATE TRIGGER staging_movements_posted_once
				BEFORE UPDATE OF posted_movement_id ON staging_movements
				WHEN OLD.posted_movement_id IS NOT NULL
					AND NEW.posted_movement_id IS NOT OLD.posted_movement_id
				BEGIN
					SELECT RAISE(ABORT, 'staging movement already posted');
				END`,
				`CREATE TRIGGER staging_movements_processed_terminal
				BEFORE UPDATE OF import_status ON staging_movements
				WHEN OLD.import_status = 'processed' AND NEW.import_status != 'processed'
				BEGIN
					SELECT RAISE(ABORT, 'processed staging movements cannot be reopened');
				END`,
				`CREATE TRIGGER staging_movements_no_delete
				BEFORE DELETE ON staging_movements
				BEGIN
					SELECT RAISE(ABORT, 'staging movements are never deleted');
				END`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Track in-flight claims on staging movements",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE staging_movements ADD COLUMN claim_token TEXT`,
				`ALTER TABLE staging_movements ADD COLUMN claimed_at DATETIME`,
				`CREATE INDEX idx_staging_movements_claim ON staging_movements(claim_token)`,
				`CREATE INDEX idx_staging_movements_claimed_at ON staging_movements(import_status, claimed_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// SchemaVersion returns the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
