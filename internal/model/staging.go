package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReviewStatus is set by the review UI; the posting engine only reads it.
type ReviewStatus string

// Review status constants.
const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// IsValid reports whether s is a known review status.
func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected:
		return true
	default:
		return false
	}
}

// ImportStatus tracks a staging movement through posting.
//
// Lifecycle:
//
//	imported -> claimed -> processed | error
//	claimed  -> imported   (claim released or reclaimed after a crash)
//	error    -> claimed    (explicit id re-run only)
//
// processed is terminal.
type ImportStatus string

// Import status constants.
const (
	ImportImported  ImportStatus = "imported"
	ImportClaimed   ImportStatus = "claimed"
	ImportProcessed ImportStatus = "processed"
	ImportError     ImportStatus = "error"
)

// IsValid reports whether s is a known import status.
func (s ImportStatus) IsValid() bool {
	switch s {
	case ImportImported, ImportClaimed, ImportProcessed, ImportError:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s ImportStatus) CanTransitionTo(next ImportStatus) bool {
	switch s {
	case ImportImported:
		return next == ImportClaimed
	case ImportClaimed:
		return next == ImportProcessed || next == ImportError || next == ImportImported
	case ImportError:
		return next == ImportClaimed
	default:
		return false
	}
}

// StagingMovement is an imported financial event awaiting posting.
type StagingMovement struct {
	CreatedAt                 time.Time
	ClaimedAt                 *time.Time
	PostedMovementID          *int64
	SenderExternalAccountID   *string
	ReceiverExternalAccountID *string
	ExternalAccountID         string
	Currency                  string
	Descriptor                string
	ReviewStatus              ReviewStatus
	ImportStatus              ImportStatus
	ErrorMessage              string
	ClaimToken                string
	OperationRef              OperationRef
	SignedAmount              decimal.Decimal
	RawPayload                []byte
	ID                        int64
	ImportRunID               int64
	AccountID                 int64 // Zero when only the external id is known
}

// IsTransfer reports whether both transfer counterparts are present.
func (m *StagingMovement) IsTransfer() bool {
	return present(m.SenderExternalAccountID) && present(m.ReceiverExternalAccountID)
}

// IsPosted reports whether the movement already produced a ledger entry.
func (m *StagingMovement) IsPosted() bool {
	return m.PostedMovementID != nil
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
