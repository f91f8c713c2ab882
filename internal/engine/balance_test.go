package engine

import (
	"testing"

	"github.com/Veraticus/backoffice-ledger/internal/common"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		prior  string
		amount string
		sign   model.Sign
		want   string
	}{
		{name: "plus positive", prior: "100.00", amount: "50.00", sign: model.SignPlus, want: "150.00"},
		{name: "plus negative uses magnitude", prior: "100.00", amount: "-50.00", sign: model.SignPlus, want: "150.00"},
		{name: "minus positive uses magnitude", prior: "150.00", amount: "30.00", sign: model.SignMinus, want: "120.00"},
		{name: "minus negative", prior: "150.00", amount: "-30.00", sign: model.SignMinus, want: "120.00"},
		{name: "minus below zero", prior: "10.00", amount: "-25.50", sign: model.SignMinus, want: "-15.50"},
		{name: "three decimals", prior: "1.000", amount: "0.125", sign: model.SignPlus, want: "1.125"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(dec(tt.prior), dec(tt.amount), tt.sign)
			assert.True(t, got.Equal(dec(tt.want)), "Apply() = %s, want %s", got, tt.want)
		})
	}
}

func TestApplyBalances(t *testing.T) {
	account := &model.Account{AvailableBalance: dec("100"), BlockedBalance: dec("20")}

	available, blocked := ApplyBalances(account, dec("-5"), model.SignMinus, model.SignPlus)
	assert.True(t, available.Equal(dec("95")), "available = %s", available)
	assert.True(t, blocked.Equal(dec("25")), "blocked = %s", blocked)

	// Pure: the account is untouched.
	assert.True(t, account.AvailableBalance.Equal(dec("100")))
}

func TestInvert(t *testing.T) {
	assert.Equal(t, model.SignMinus, Invert(model.SignPlus))
	assert.Equal(t, model.SignPlus, Invert(model.SignMinus))
}

func TestCheckPrecision(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		wantErr  bool
	}{
		{name: "usd cents", amount: "10.25", currency: "USD"},
		{name: "usd trailing zero", amount: "10.250", currency: "USD"},
		{name: "usd sub-cent", amount: "10.255", currency: "USD", wantErr: true},
		{name: "jpy whole", amount: "1500", currency: "JPY"},
		{name: "jpy fraction", amount: "1500.5", currency: "JPY", wantErr: true},
		{name: "kwd fils", amount: "1.125", currency: "kwd"},
		{name: "unknown currency defaults to two", amount: "1.123", currency: "XYZ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPrecision(dec(tt.amount), tt.currency)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrInvalidPrecision)
				return
			}
			assert.NoError(t, err)
		})
	}
}
