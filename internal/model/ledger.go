package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceStaging tags ledger entries produced from staging movements.
const SourceStaging = "staging"

// LedgerMovement is an immutable posted entry. The resultant balances are the
// account balances immediately after this entry was applied.
type LedgerMovement struct {
	PostedAt                  time.Time
	RelatedMovementID         *int64 // Counterpart entry of a transfer pair
	Currency                  string
	Descriptor                string
	Source                    string
	SignedAmount              decimal.Decimal
	ResultantAvailableBalance decimal.Decimal
	ResultantBlockedBalance   decimal.Decimal
	ID                        int64
	AccountID                 int64
	OperationTypeID           int64
	StagingMovementID         int64
}
