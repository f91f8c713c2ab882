package testutil

import (
	"context"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/shopspring/decimal"
)

var stagingEpoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// StagingBuilder provides a fluent interface for constructing staging movements.
//
// Example:
//
//	m := db.Stage(run).Account("ACC-1").Amount("50.00").External(4).Save()
type StagingBuilder struct {
	db *TestDB
	m  *model.StagingMovement
}

// Account sets the external account id.
func (b *StagingBuilder) Account(externalID string) *StagingBuilder {
	b.m.ExternalAccountID = externalID
	return b
}

// AccountID sets the internal account id.
func (b *StagingBuilder) AccountID(id int64) *StagingBuilder {
	b.m.AccountID = id
	return b
}

// Amount sets the signed amount.
func (b *StagingBuilder) Amount(amount string) *StagingBuilder {
	b.m.SignedAmount = decimal.RequireFromString(amount)
	return b
}

// Currency overrides the default USD currency.
func (b *StagingBuilder) Currency(currency string) *StagingBuilder {
	b.m.Currency = currency
	return b
}

// Code references an operation type by internal code.
func (b *StagingBuilder) Code(code string) *StagingBuilder {
	b.m.OperationRef = model.InternalRef(code)
	return b
}

// External references an operation type by external numeric type.
func (b *StagingBuilder) External(externalType int) *StagingBuilder {
	b.m.OperationRef = model.ExternalRef(externalType)
	return b
}

// Transfer sets both transfer counterparts.
func (b *StagingBuilder) Transfer(sender, receiver string) *StagingBuilder {
	b.m.SenderExternalAccountID = &sender
	b.m.ReceiverExternalAccountID = &receiver
	return b
}

// Payload sets the raw payload.
func (b *StagingBuilder) Payload(raw string) *StagingBuilder {
	b.m.RawPayload = []byte(raw)
	return b
}

// Descriptor sets the descriptor.
func (b *StagingBuilder) Descriptor(d string) *StagingBuilder {
	b.m.Descriptor = d
	return b
}

// Review sets the review status. Movements are approved unless told otherwise.
func (b *StagingBuilder) Review(status model.ReviewStatus) *StagingBuilder {
	b.m.ReviewStatus = status
	return b
}

// At overrides the creation time.
func (b *StagingBuilder) At(t time.Time) *StagingBuilder {
	b.m.CreatedAt = t
	return b
}

// Save stores the movement and returns it with its id set.
func (b *StagingBuilder) Save() *model.StagingMovement {
	b.db.t.Helper()
	if err := b.db.Storage.SaveStagingMovements(context.Background(), []*model.StagingMovement{b.m}); err != nil {
		b.db.t.Fatalf("failed to save staging movement: %v", err)
	}
	return b.m
}
