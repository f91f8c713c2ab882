// Package storage provides the data persistence layer for the posting engine.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/backoffice-ledger/internal/model"
)

// Validation errors.
var (
	ErrNilContext           = errors.New("context cannot be nil")
	ErrEmptyString          = errors.New("string parameter cannot be empty")
	ErrNilParameter         = errors.New("parameter cannot be nil")
	ErrEmptySlice           = errors.New("slice cannot be empty")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidStaging       = errors.New("invalid staging movement")
	ErrInvalidLedgerEntry   = errors.New("invalid ledger movement")
	ErrInvalidAccount       = errors.New("invalid account")
	ErrInvalidOperationType = errors.New("invalid operation type")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateIDs(ids []int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: ids", ErrEmptySlice)
	}
	return nil
}

func validateAccount(account *model.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	if strings.TrimSpace(account.ExternalID) == "" {
		return fmt.Errorf("%w: missing external id", ErrInvalidAccount)
	}
	if strings.TrimSpace(account.Currency) == "" {
		return fmt.Errorf("%w: missing currency", ErrInvalidAccount)
	}
	return nil
}

func validateOperationType(opType *model.OperationType) error {
	if opType == nil {
		return fmt.Errorf("%w: operation type", ErrNilParameter)
	}
	if err := opType.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOperationType, err)
	}
	return nil
}

// validateStagingMovement checks the shape an import feed must produce. Data
// problems the posting engine classifies (zero amounts, unknown accounts,
// malformed payloads) are accepted here on purpose.
func validateStagingMovement(m *model.StagingMovement) error {
	if m == nil {
		return fmt.Errorf("%w: staging movement", ErrNilParameter)
	}
	if m.ImportRunID == 0 {
		return fmt.Errorf("%w: missing import run", ErrInvalidStaging)
	}
	if m.AccountID == 0 && strings.TrimSpace(m.ExternalAccountID) == "" {
		return fmt.Errorf("%w: missing account reference", ErrInvalidStaging)
	}
	if m.OperationRef.IsZero() {
		return fmt.Errorf("%w: missing operation reference", ErrInvalidStaging)
	}
	if strings.TrimSpace(m.Currency) == "" {
		return fmt.Errorf("%w: missing currency", ErrInvalidStaging)
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing created at", ErrInvalidStaging)
	}
	if m.ReviewStatus != "" && !m.ReviewStatus.IsValid() {
		return fmt.Errorf("%w: review status %q", ErrInvalidStatus, m.ReviewStatus)
	}
	if m.ImportStatus != "" && m.ImportStatus != model.ImportImported {
		return fmt.Errorf("%w: new staging movements must be %s, got %q", ErrInvalidStatus, model.ImportImported, m.ImportStatus)
	}
	return nil
}

func validateLedgerMovement(m *model.LedgerMovement) error {
	if m == nil {
		return fmt.Errorf("%w: ledger movement", ErrNilParameter)
	}
	if m.AccountID == 0 {
		return fmt.Errorf("%w: missing account", ErrInvalidLedgerEntry)
	}
	if m.OperationTypeID == 0 {
		return fmt.Errorf("%w: missing operation type", ErrInvalidLedgerEntry)
	}
	if m.SignedAmount.IsZero() {
		return fmt.Errorf("%w: zero amount", ErrInvalidLedgerEntry)
	}
	if m.PostedAt.IsZero() {
		return fmt.Errorf("%w: missing posted at", ErrInvalidLedgerEntry)
	}
	return nil
}
