package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/common"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/Veraticus/backoffice-ledger/internal/service"
)

// PosterConfig holds configuration options for the ledger poster.
type PosterConfig struct {
	Now   func() time.Time
	Retry common.RetryOptions
}

// DefaultPosterConfig returns the default configuration.
func DefaultPosterConfig() PosterConfig {
	return PosterConfig{
		Now: time.Now,
		Retry: common.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     200 * time.Millisecond,
			Multiplier:   2.0,
		},
	}
}

// Poster commits one staging movement into the ledger.
type Poster struct {
	store    service.Storage
	registry *Registry
	now      func() time.Time
	retry    common.RetryOptions
}

// NewPoster creates a poster resolving operation types through registry.
func NewPoster(store service.Storage, registry *Registry, config PosterConfig) *Poster {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Poster{
		store:    store,
		registry: registry,
		now:      config.Now,
		retry:    config.Retry,
	}
}

// Post writes the ledger entries for m, updates balances and marks m
// processed, all in one transaction. It returns the id recorded as the
// movement's posted id. Failures are *common.PostingError; a lost race comes
// back as PostingConflict and leaves nothing written.
func (p *Poster) Post(ctx context.Context, m *model.StagingMovement) (int64, error) {
	if err := checkAmount(m); err != nil {
		return 0, attach(err, m.ID)
	}
	if err := checkPayload(m.RawPayload); err != nil {
		return 0, attach(err, m.ID)
	}

	// Operation types must be in memory before a transaction holds the connection.
	if err := p.registry.ensureLoaded(ctx); err != nil {
		return 0, err
	}

	var postedID int64
	err := common.WithRetry(ctx, func() error {
		id, err := p.postOnce(ctx, m)
		if err != nil {
			return err
		}
		postedID = id
		return nil
	}, p.retry)
	if err == nil {
		return postedID, nil
	}

	if common.IsConflict(err) && common.CodeOf(err) != common.CodePostingConflict {
		return 0, common.WrapPostingError(common.CodePostingConflict, m.ID, err)
	}
	return 0, attach(err, m.ID)
}

// Reject records cause against m and raises an alert. Nothing in the ledger
// or on any account changes.
func (p *Poster) Reject(ctx context.Context, m *model.StagingMovement, cause error) error {
	var pe *common.PostingError
	if !errors.As(cause, &pe) {
		pe = common.WrapPostingError(common.CodeInternal, m.ID, cause)
	}
	message := pe.Error()

	alert := &model.Alert{
		ImportRunID:       m.ImportRunID,
		StagingMovementID: m.ID,
		AlertType:         model.AlertPostingFailed,
		Message:           fmt.Sprintf("staging movement %d: %s", m.ID, message),
		CreatedAt:         p.now(),
	}
	return p.store.MarkStagingError(ctx, m.ID, m.ClaimToken, message, alert)
}

func (p *Poster) postOnce(ctx context.Context, m *model.StagingMovement) (int64, error) {
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	account, err := resolveAccount(ctx, tx, m)
	if err != nil {
		return 0, err
	}
	if err := checkCurrency(m, account); err != nil {
		return 0, err
	}

	opType, err := p.registry.Resolve(ctx, m.OperationRef, m.SignedAmount)
	if err != nil {
		return 0, err
	}

	plan, err := Classify(ctx, m, tx)
	if err != nil {
		return 0, err
	}
	plan.Account = account

	var postedID int64
	switch plan.Kind {
	case TransferPosting:
		if err := checkCurrency(m, plan.Sender, plan.Receiver); err != nil {
			return 0, err
		}
		postedID, err = p.postTransfer(ctx, tx, m, opType, plan)
	default:
		postedID, err = p.postSingle(ctx, tx, m, opType, plan.Account)
	}
	if err != nil {
		return 0, err
	}

	if err := tx.MarkStagingProcessed(ctx, m.ID, m.ClaimToken, postedID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit posting: %w", err)
	}
	committed = true
	return postedID, nil
}

func (p *Poster) postSingle(ctx context.Context, tx service.Tx, m *model.StagingMovement, opType *model.OperationType, account *model.Account) (int64, error) {
	available, blocked := ApplyBalances(account, m.SignedAmount, opType.AvailableSign, opType.BlockedSign)

	entry := p.entry(m, opType, account)
	entry.SignedAmount = m.SignedAmount
	entry.ResultantAvailableBalance = available
	entry.ResultantBlockedBalance = blocked

	if err := tx.InsertLedgerMovement(ctx, entry); err != nil {
		return 0, err
	}
	if err := tx.UpdateAccountBalances(ctx, account.ID, account.Version, available, blocked); err != nil {
		return 0, err
	}
	return entry.ID, nil
}

// postTransfer writes the receiving leg with the operation type's signs and
// the sending leg with them inverted, for the same magnitude.
func (p *Poster) postTransfer(ctx context.Context, tx service.Tx, m *model.StagingMovement, opType *model.OperationType, plan Plan) (int64, error) {
	amount := m.SignedAmount.Abs()

	recvAvailable, recvBlocked := ApplyBalances(plan.Receiver, amount, opType.AvailableSign, opType.BlockedSign)
	sendAvailable, sendBlocked := ApplyBalances(plan.Sender, amount, Invert(opType.AvailableSign), Invert(opType.BlockedSign))

	received := p.entry(m, opType, plan.Receiver)
	received.SignedAmount = amount
	received.ResultantAvailableBalance = recvAvailable
	received.ResultantBlockedBalance = recvBlocked
	if err := tx.InsertLedgerMovement(ctx, received); err != nil {
		return 0, err
	}

	sent := p.entry(m, opType, plan.Sender)
	sent.SignedAmount = amount.Neg()
	sent.ResultantAvailableBalance = sendAvailable
	sent.ResultantBlockedBalance = sendBlocked
	sent.RelatedMovementID = &received.ID
	if err := tx.InsertLedgerMovement(ctx, sent); err != nil {
		return 0, err
	}

	if err := tx.LinkLedgerMovements(ctx, received.ID, sent.ID); err != nil {
		return 0, err
	}
	if err := tx.UpdateAccountBalances(ctx, plan.Receiver.ID, plan.Receiver.Version, recvAvailable, recvBlocked); err != nil {
		return 0, err
	}
	if err := tx.UpdateAccountBalances(ctx, plan.Sender.ID, plan.Sender.Version, sendAvailable, sendBlocked); err != nil {
		return 0, err
	}
	return received.ID, nil
}

func (p *Poster) entry(m *model.StagingMovement, opType *model.OperationType, account *model.Account) *model.LedgerMovement {
	descriptor := m.Descriptor
	if strings.TrimSpace(descriptor) == "" {
		descriptor = opType.Code
	}
	return &model.LedgerMovement{
		AccountID:         account.ID,
		OperationTypeID:   opType.ID,
		StagingMovementID: m.ID,
		Currency:          account.Currency,
		Descriptor:        descriptor,
		Source:            model.SourceStaging,
		PostedAt:          p.now(),
	}
}

func checkAmount(m *model.StagingMovement) error {
	if m.SignedAmount.IsZero() {
		return common.NewPostingError(common.CodeZeroAmount, m.ID, "signed amount is zero")
	}
	return CheckPrecision(m.SignedAmount, m.Currency)
}

// checkPayload accepts an empty payload or a JSON object or array. Bare JSON
// scalars are raw text, not structured data.
func checkPayload(payload []byte) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return common.NewPostingError(common.CodeMalformedPayload, 0, "raw payload is not a JSON object or array")
	}
	if !json.Valid(trimmed) {
		return common.NewPostingError(common.CodeMalformedPayload, 0, "raw payload is not valid JSON")
	}
	return nil
}

func checkCurrency(m *model.StagingMovement, accounts ...*model.Account) error {
	for _, a := range accounts {
		if !strings.EqualFold(a.Currency, m.Currency) {
			return common.NewPostingError(common.CodeMalformedPayload, m.ID,
				"movement currency %s does not match account %s currency %s", m.Currency, a.ExternalID, a.Currency)
		}
	}
	return nil
}

// attach stamps the staging id on a classified error built without one.
func attach(err error, stagingID int64) error {
	var pe *common.PostingError
	if errors.As(err, &pe) && pe.StagingID == 0 {
		pe.StagingID = stagingID
	}
	return err
}
