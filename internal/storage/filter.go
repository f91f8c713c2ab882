package storage

import (
	"strings"

	"github.com/Veraticus/backoffice-ledger/internal/service"
)

// whereClause renders a staging filter as a parameterized WHERE clause.
// Values are never interpolated into the query text.
func whereClause(f service.StagingFilter) (string, []any) {
	var conds []string
	var args []any

	if len(f.IDs) > 0 {
		conds = append(conds, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if f.ImportRunID != nil {
		conds = append(conds, "import_run_id = ?")
		args = append(args, *f.ImportRunID)
	}
	if len(f.ReviewStatus) > 0 {
		conds = append(conds, "review_status IN ("+placeholders(len(f.ReviewStatus))+")")
		for _, st := range f.ReviewStatus {
			args = append(args, string(st))
		}
	}
	if len(f.ImportStatus) > 0 {
		conds = append(conds, "import_status IN ("+placeholders(len(f.ImportStatus))+")")
		for _, st := range f.ImportStatus {
			args = append(args, string(st))
		}
	}
	if f.Unposted {
		conds = append(conds, "posted_movement_id IS NULL")
	}
	if f.ClaimToken != "" {
		conds = append(conds, "claim_token = ?")
		args = append(args, f.ClaimToken)
	}
	if f.ClaimedBefore != nil {
		conds = append(conds, "claimed_at < ?")
		args = append(args, f.ClaimedBefore.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
