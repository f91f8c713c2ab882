// Package ofx loads OFX/QFX bank and card statements as staging movements.
// Each statement line becomes one movement referencing its operation type by
// the OFX TRNTYPE code.
package ofx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// StagingSaver persists staging movements.
type StagingSaver interface {
	SaveStagingMovements(ctx context.Context, movements []*model.StagingMovement) error
}

// Loader converts OFX statements into staging movements for one import run.
type Loader struct {
	now     func() time.Time
	approve bool
}

// NewLoader creates a loader. With approve set the movements are staged
// already approved; otherwise they wait for review.
func NewLoader(approve bool) *Loader {
	return &Loader{approve: approve, now: time.Now}
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tag alone on a line with its '>' missing.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocess repairs formatting banks get wrong often enough that ofxgo
// rejects the file.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// payload is what the loader keeps of the source line.
type payload struct {
	FitID    string `json:"fitid"`
	Name     string `json:"name,omitempty"`
	Memo     string `json:"memo,omitempty"`
	TrnType  string `json:"trntype"`
	CheckNum string `json:"checknum,omitempty"`
}

// Parse reads a statement file and returns its lines as movements of run,
// in file order.
func (l *Loader) Parse(ctx context.Context, r io.Reader, importRunID int64) ([]*model.StagingMovement, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var movements []*model.StagingMovement
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		bankStmts++
		converted, err := l.convertAll(stmt.BankTranList.Transactions, string(stmt.BankAcctFrom.AcctID), stmt.CurDef.String(), importRunID)
		if err != nil {
			return nil, err
		}
		movements = append(movements, converted...)
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		ccStmts++
		converted, err := l.convertAll(stmt.BankTranList.Transactions, string(stmt.CCAcctFrom.AcctID), stmt.CurDef.String(), importRunID)
		if err != nil {
			return nil, err
		}
		movements = append(movements, converted...)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Info("Parsed OFX file",
		"movements", len(movements),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts,
		"import_run_id", importRunID)

	return movements, nil
}

// Load parses r and saves the movements. It returns how many were staged.
func (l *Loader) Load(ctx context.Context, store StagingSaver, r io.Reader, importRunID int64) (int, error) {
	movements, err := l.Parse(ctx, r, importRunID)
	if err != nil {
		return 0, err
	}
	if len(movements) == 0 {
		return 0, nil
	}
	if err := store.SaveStagingMovements(ctx, movements); err != nil {
		return 0, fmt.Errorf("failed to stage OFX movements: %w", err)
	}
	return len(movements), nil
}

func (l *Loader) convertAll(txns []ofxgo.Transaction, accountID, currency string, importRunID int64) ([]*model.StagingMovement, error) {
	movements := make([]*model.StagingMovement, 0, len(txns))
	for _, t := range txns {
		m, err := l.convert(t, accountID, currency, importRunID)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", accountID, err)
		}
		movements = append(movements, m)
	}
	return movements, nil
}

func (l *Loader) convert(t ofxgo.Transaction, accountID, currency string, importRunID int64) (*model.StagingMovement, error) {
	// TRNAMT is signed the way the ledger is: negative leaves the account.
	amount, err := decimal.NewFromString(t.TrnAmt.FloatString(8))
	if err != nil {
		return nil, fmt.Errorf("transaction %s: invalid amount: %w", t.FiTID, err)
	}

	raw, err := json.Marshal(payload{
		FitID:    string(t.FiTID),
		Name:     string(t.Name),
		Memo:     string(t.Memo),
		TrnType:  t.TrnType.String(),
		CheckNum: string(t.CheckNum),
	})
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", t.FiTID, err)
	}

	review := model.ReviewPending
	if l.approve {
		review = model.ReviewApproved
	}

	createdAt := t.DtPosted.Time
	if createdAt.IsZero() {
		createdAt = l.now()
	}

	return &model.StagingMovement{
		ImportRunID:       importRunID,
		ExternalAccountID: accountID,
		OperationRef:      model.ExternalRef(int(t.TrnType)),
		SignedAmount:      amount,
		Currency:          currency,
		Descriptor:        descriptor(t),
		RawPayload:        raw,
		ReviewStatus:      review,
		CreatedAt:         createdAt,
	}, nil
}

// descriptor prefers the payee, then the name, then the memo.
func descriptor(t ofxgo.Transaction) string {
	if t.Payee != nil && t.Payee.Name != "" {
		return strings.TrimSpace(string(t.Payee.Name))
	}
	if name := strings.TrimSpace(string(t.Name)); name != "" {
		return name
	}
	return strings.TrimSpace(string(t.Memo))
}
