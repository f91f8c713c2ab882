package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/model"
)

func insertAlertTx(ctx context.Context, q queryable, alert *model.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	if alert.AlertType == "" {
		alert.AlertType = model.AlertPostingFailed
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO alerts (import_run_id, staging_movement_id, alert_type, message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, nullID(alert.ImportRunID), nullID(alert.StagingMovementID), alert.AlertType, alert.Message, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get alert id: %w", err)
	}
	alert.ID = id
	return nil
}

// ListAlerts returns alerts raised for a run. A zero run id lists every alert.
func (s *SQLiteStorage) ListAlerts(ctx context.Context, importRunID int64) ([]model.Alert, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, import_run_id, staging_movement_id, alert_type, message, created_at FROM alerts`
	var args []any
	if importRunID != 0 {
		query += ` WHERE import_run_id = ?`
		args = append(args, importRunID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var runID, stagingID sql.NullInt64
		if err := rows.Scan(&a.ID, &runID, &stagingID, &a.AlertType, &a.Message, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.ImportRunID = runID.Int64
		a.StagingMovementID = stagingID.Int64
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
