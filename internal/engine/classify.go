package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/backoffice-ledger/internal/common"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/Veraticus/backoffice-ledger/internal/service"
)

// PlanKind tells whether a movement posts one entry or a transfer pair.
type PlanKind int

// Plan kinds.
const (
	SinglePosting PlanKind = iota + 1
	TransferPosting
)

func (k PlanKind) String() string {
	switch k {
	case SinglePosting:
		return "single"
	case TransferPosting:
		return "transfer"
	default:
		return "unknown"
	}
}

// Plan is the resolved shape of one posting.
type Plan struct {
	Account  *model.Account
	Sender   *model.Account
	Receiver *model.Account
	Kind     PlanKind
}

// Classify decides whether m is a transfer and, if so, resolves both
// counterparts. A transfer with an unknown counterpart posts nothing.
func Classify(ctx context.Context, m *model.StagingMovement, accounts service.AccountReader) (Plan, error) {
	if !m.IsTransfer() {
		return Plan{Kind: SinglePosting}, nil
	}

	sender, err := lookupCounterparty(ctx, accounts, m.ID, "sender", *m.SenderExternalAccountID)
	if err != nil {
		return Plan{}, err
	}
	receiver, err := lookupCounterparty(ctx, accounts, m.ID, "receiver", *m.ReceiverExternalAccountID)
	if err != nil {
		return Plan{}, err
	}

	if sender.ID == receiver.ID {
		return Plan{}, common.NewPostingError(common.CodeMalformedPayload, m.ID,
			"transfer sender and receiver are the same account %s", sender.ExternalID)
	}

	return Plan{Kind: TransferPosting, Sender: sender, Receiver: receiver}, nil
}

func lookupCounterparty(ctx context.Context, accounts service.AccountReader, stagingID int64, role, externalID string) (*model.Account, error) {
	account, err := accounts.GetAccountByExternalID(ctx, strings.TrimSpace(externalID))
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewPostingError(common.CodeCounterpartyAccountNotFound, stagingID,
			"%s account %q not found", role, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s account: %w", role, err)
	}
	return account, nil
}

// resolveAccount finds the movement's own account by internal id, falling
// back to the external id.
func resolveAccount(ctx context.Context, accounts service.AccountReader, m *model.StagingMovement) (*model.Account, error) {
	if m.AccountID != 0 {
		account, err := accounts.GetAccount(ctx, m.AccountID)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("failed to resolve account: %w", err)
		}
	}

	if strings.TrimSpace(m.ExternalAccountID) != "" {
		account, err := accounts.GetAccountByExternalID(ctx, strings.TrimSpace(m.ExternalAccountID))
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("failed to resolve account: %w", err)
		}
	}

	return nil, common.NewPostingError(common.CodeAccountNotFound, m.ID,
		"no account for id %d / external id %q", m.AccountID, m.ExternalAccountID)
}
