package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/model"
)

// CreateOperationType stores an operation type with its external mappings.
func (s *SQLiteStorage) CreateOperationType(ctx context.Context, opType *model.OperationType) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateOperationType(opType); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO operation_types (code, description, available_sign, blocked_sign, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, opType.Code, opType.Description, string(opType.AvailableSign), string(opType.BlockedSign), opType.Active, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to create operation type: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get operation type id: %w", err)
		}
		opType.ID = id

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO operation_type_mappings (operation_type_id, external_code, direction)
			VALUES (?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare mapping statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, m := range opType.ExternalMappings {
			if _, err := stmt.ExecContext(ctx, id, m.Code, string(m.Direction)); err != nil {
				return fmt.Errorf("failed to insert mapping %s: %w", m, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateOperationTypeCache()
	return nil
}

// ListOperationTypes returns all operation types, inactive ones included.
func (s *SQLiteStorage) ListOperationTypes(ctx context.Context) ([]model.OperationType, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.loadOperationTypes(ctx, false)
}

// GetActiveOperationTypes returns active operation types. Results are cached
// briefly since every batch reloads the registry.
func (s *SQLiteStorage) GetActiveOperationTypes(ctx context.Context) ([]model.OperationType, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	s.cacheMutex.RLock()
	if s.opTypeCache != nil && time.Now().Before(s.cacheExpiry) {
		cached := copyOperationTypes(s.opTypeCache)
		s.cacheMutex.RUnlock()
		return cached, nil
	}
	s.cacheMutex.RUnlock()

	types, err := s.loadOperationTypes(ctx, true)
	if err != nil {
		return nil, err
	}

	s.cacheMutex.Lock()
	s.opTypeCache = copyOperationTypes(types)
	s.cacheExpiry = time.Now().Add(opTypeCacheTTL)
	s.cacheMutex.Unlock()

	return types, nil
}

func (s *SQLiteStorage) invalidateOperationTypeCache() {
	s.cacheMutex.Lock()
	s.opTypeCache = nil
	s.cacheExpiry = time.Time{}
	s.cacheMutex.Unlock()
}

func (s *SQLiteStorage) loadOperationTypes(ctx context.Context, activeOnly bool) ([]model.OperationType, error) {
	query := `SELECT id, code, description, available_sign, blocked_sign, active FROM operation_types`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation types: %w", err)
	}

	var types []model.OperationType
	index := make(map[int64]int)
	for rows.Next() {
		var t model.OperationType
		var description sql.NullString
		var availableSign, blockedSign string
		if err := rows.Scan(&t.ID, &t.Code, &description, &availableSign, &blockedSign, &t.Active); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan operation type: %w", err)
		}
		t.Description = description.String
		t.AvailableSign = model.Sign(availableSign)
		t.BlockedSign = model.Sign(blockedSign)
		index[t.ID] = len(types)
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating operation types: %w", err)
	}
	_ = rows.Close()

	// Mappings are read after the first cursor is closed; the pool has one connection.
	mappingRows, err := s.db.QueryContext(ctx, `
		SELECT operation_type_id, external_code, direction
		FROM operation_type_mappings
		ORDER BY operation_type_id, external_code, direction
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation type mappings: %w", err)
	}
	defer func() { _ = mappingRows.Close() }()

	for mappingRows.Next() {
		var typeID int64
		var m model.ExternalTypeMapping
		var direction string
		if err := mappingRows.Scan(&typeID, &m.Code, &direction); err != nil {
			return nil, fmt.Errorf("failed to scan operation type mapping: %w", err)
		}
		m.Direction = model.Direction(direction)
		if i, ok := index[typeID]; ok {
			types[i].ExternalMappings = append(types[i].ExternalMappings, m)
		}
	}
	return types, mappingRows.Err()
}

func copyOperationTypes(src []model.OperationType) []model.OperationType {
	out := make([]model.OperationType, len(src))
	for i, t := range src {
		out[i] = t
		out[i].ExternalMappings = append([]model.ExternalTypeMapping(nil), t.ExternalMappings...)
	}
	return out
}
