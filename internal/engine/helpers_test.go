package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/common"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/Veraticus/backoffice-ledger/internal/service"
	"github.com/Veraticus/backoffice-ledger/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// claimOne claims a single movement the way a batch would.
func claimOne(t *testing.T, db *testutil.TestDB, id int64) *model.StagingMovement {
	t.Helper()
	token := fmt.Sprintf("test-%d", id)
	n, err := db.Storage.ClaimByIDs(context.Background(), token, time.Now(), []int64{id})
	require.NoError(t, err)
	require.EqualValues(t, 1, n, "movement %d was not claimable", id)
	m := db.MustGetStaging(id)
	return &m
}

// requireChain checks every entry's resultant balances follow from the
// previous entry and the operation type's signs.
func requireChain(t *testing.T, db *testutil.TestDB, account *model.Account, types map[int64]*model.OperationType) {
	t.Helper()
	entries := db.MustListLedger(account.ID)

	available := account.AvailableBalance
	blocked := account.BlockedBalance
	for i, e := range entries {
		opType := types[e.OperationTypeID]
		require.NotNil(t, opType, "entry %d has unknown operation type %d", e.ID, e.OperationTypeID)

		availableSign, blockedSign := opType.AvailableSign, opType.BlockedSign
		if e.RelatedMovementID != nil && e.SignedAmount.IsNegative() {
			availableSign, blockedSign = Invert(availableSign), Invert(blockedSign)
		}
		available = Apply(available, e.SignedAmount, availableSign)
		blocked = Apply(blocked, e.SignedAmount, blockedSign)

		require.Truef(t, e.ResultantAvailableBalance.Equal(available),
			"entry #%d (%d): resultant available %s, want %s", i, e.ID, e.ResultantAvailableBalance, available)
		require.Truef(t, e.ResultantBlockedBalance.Equal(blocked),
			"entry #%d (%d): resultant blocked %s, want %s", i, e.ID, e.ResultantBlockedBalance, blocked)
	}

	current := db.MustGetAccount(account.ID)
	require.True(t, current.AvailableBalance.Equal(available), "account available %s, chain ends at %s", current.AvailableBalance, available)
	require.True(t, current.BlockedBalance.Equal(blocked), "account blocked %s, chain ends at %s", current.BlockedBalance, blocked)
}

func typeIndex(types ...*model.OperationType) map[int64]*model.OperationType {
	idx := make(map[int64]*model.OperationType, len(types))
	for _, t := range types {
		idx[t.ID] = t
	}
	return idx
}

// faultyStore wraps every transaction it hands out.
type faultyStore struct {
	service.Storage
	wrap func(service.Tx) service.Tx
}

func (f *faultyStore) BeginTx(ctx context.Context) (service.Tx, error) {
	tx, err := f.Storage.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return f.wrap(tx), nil
}

// staleTx always loses the optimistic balance check.
type staleTx struct {
	service.Tx
	attempts *int
}

func (s staleTx) UpdateAccountBalances(context.Context, int64, int64, decimal.Decimal, decimal.Decimal) error {
	*s.attempts++
	return fmt.Errorf("forced: %w", common.ErrStaleBalance)
}

// panicTx panics when asked for one external account.
type panicTx struct {
	service.Tx
	externalID string
}

func (p panicTx) GetAccountByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	if externalID == p.externalID {
		panic("lookup exploded")
	}
	return p.Tx.GetAccountByExternalID(ctx, externalID)
}

func fastConfig() RunnerConfig {
	cfg := DefaultRunnerConfig()
	cfg.Poster.Retry.InitialDelay = time.Millisecond
	cfg.Poster.Retry.MaxDelay = 2 * time.Millisecond
	return cfg
}
