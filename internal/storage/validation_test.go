package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/shopspring/decimal"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{
			name:    "valid context",
			ctx:     context.Background(),
			wantErr: false,
		},
		{
			name:    "nil context",
			ctx:     nil,
			wantErr: true,
		},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateString(t *testing.T) {
	tests := []struct {
		name    string
		str     string
		wantErr bool
	}{
		{name: "valid string", str: "test"},
		{name: "empty string", str: "", wantErr: true},
		{name: "whitespace only", str: "   ", wantErr: true},
		{name: "string with spaces", str: "  test  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateString(tt.str, "param")
			if (err != nil) != tt.wantErr {
				t.Errorf("validateString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrEmptyString) {
				t.Errorf("validateString() error = %v, want ErrEmptyString", err)
			}
		})
	}
}

func TestValidateStagingMovement(t *testing.T) {
	valid := func() *model.StagingMovement {
		return &model.StagingMovement{
			ImportRunID:       1,
			ExternalAccountID: "ACC-1",
			OperationRef:      model.ExternalRef(7),
			SignedAmount:      decimal.NewFromInt(10),
			Currency:          "USD",
			CreatedAt:         time.Now(),
		}
	}

	tests := []struct {
		mutate  func(*model.StagingMovement)
		wantErr error
		name    string
	}{
		{name: "valid", mutate: func(*model.StagingMovement) {}},
		{name: "zero amount accepted", mutate: func(m *model.StagingMovement) { m.SignedAmount = decimal.Zero }},
		{name: "internal account id only", mutate: func(m *model.StagingMovement) { m.ExternalAccountID = ""; m.AccountID = 3 }},
		{name: "missing run", mutate: func(m *model.StagingMovement) { m.ImportRunID = 0 }, wantErr: ErrInvalidStaging},
		{name: "missing account", mutate: func(m *model.StagingMovement) { m.ExternalAccountID = "" }, wantErr: ErrInvalidStaging},
		{name: "missing operation", mutate: func(m *model.StagingMovement) { m.OperationRef = model.OperationRef{} }, wantErr: ErrInvalidStaging},
		{name: "missing currency", mutate: func(m *model.StagingMovement) { m.Currency = " " }, wantErr: ErrInvalidStaging},
		{name: "missing created at", mutate: func(m *model.StagingMovement) { m.CreatedAt = time.Time{} }, wantErr: ErrInvalidStaging},
		{name: "bad review status", mutate: func(m *model.StagingMovement) { m.ReviewStatus = "maybe" }, wantErr: ErrInvalidStatus},
		{name: "already processed", mutate: func(m *model.StagingMovement) { m.ImportStatus = model.ImportProcessed }, wantErr: ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.mutate(m)
			err := validateStagingMovement(m)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("validateStagingMovement() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateStagingMovement() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := validateStagingMovement(nil); !errors.Is(err, ErrNilParameter) {
		t.Errorf("validateStagingMovement(nil) error = %v, want ErrNilParameter", err)
	}
}

func TestValidateLedgerMovement(t *testing.T) {
	base := model.LedgerMovement{
		AccountID:       1,
		OperationTypeID: 2,
		SignedAmount:    decimal.NewFromInt(5),
		PostedAt:        time.Now(),
	}

	if err := validateLedgerMovement(&base); err != nil {
		t.Fatalf("validateLedgerMovement() unexpected error = %v", err)
	}

	zero := base
	zero.SignedAmount = decimal.Zero
	if err := validateLedgerMovement(&zero); !errors.Is(err, ErrInvalidLedgerEntry) {
		t.Errorf("zero amount error = %v, want ErrInvalidLedgerEntry", err)
	}

	noType := base
	noType.OperationTypeID = 0
	if err := validateLedgerMovement(&noType); !errors.Is(err, ErrInvalidLedgerEntry) {
		t.Errorf("missing type error = %v, want ErrInvalidLedgerEntry", err)
	}
}

func TestValidateOperationType(t *testing.T) {
	tests := []struct {
		opType  *model.OperationType
		name    string
		wantErr bool
	}{
		{
			name: "valid",
			opType: &model.OperationType{
				Code: "DEPOSIT", AvailableSign: model.SignPlus, BlockedSign: model.SignPlus,
				ExternalMappings: []model.ExternalTypeMapping{{Code: 1, Direction: model.DirectionIn}},
			},
		},
		{name: "nil", opType: nil, wantErr: true},
		{name: "bad sign", opType: &model.OperationType{Code: "X", AvailableSign: "*", BlockedSign: model.SignPlus}, wantErr: true},
		{
			name: "duplicate mapping",
			opType: &model.OperationType{
				Code: "X", AvailableSign: model.SignPlus, BlockedSign: model.SignPlus,
				ExternalMappings: []model.ExternalTypeMapping{
					{Code: 1, Direction: model.DirectionIn},
					{Code: 1, Direction: model.DirectionIn},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateOperationType(tt.opType)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateOperationType() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
