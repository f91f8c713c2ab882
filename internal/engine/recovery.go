package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/service"
)

// Recovery reopens claims abandoned by workers that stopped mid-batch.
type Recovery struct {
	store service.Storage
	now   func() time.Time
}

// NewRecovery creates a recovery sweeper.
func NewRecovery(store service.Storage) *Recovery {
	return &Recovery{store: store, now: time.Now}
}

// Sweep returns movements claimed more than olderThan ago, and still
// unposted, to the eligible pool.
func (r *Recovery) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("recovery threshold must be positive, got %s", olderThan)
	}

	reopened, err := r.store.ReopenStaleClaims(ctx, r.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if reopened > 0 {
		slog.Warn("Reopened stale claims", "count", reopened, "older_than", olderThan)
	}
	return int(reopened), nil
}
