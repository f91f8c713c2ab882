// Package model defines the core domain models of the posting engine.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is an internal financial account. Its balances change only as a
// side effect of posting a LedgerMovement.
type Account struct {
	UpdatedAt        time.Time
	ExternalID       string // Processor-assigned account id
	Currency         string
	AvailableBalance decimal.Decimal
	BlockedBalance   decimal.Decimal
	ID               int64
	Version          int64 // Bumped by every posting; guards balance read-modify-write
}
