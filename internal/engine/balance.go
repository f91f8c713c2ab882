package engine

import (
	"github.com/Veraticus/backoffice-ledger/internal/common"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/shopspring/decimal"
)

// Apply moves prior by the magnitude of signedAmount in the direction of sign.
func Apply(prior, signedAmount decimal.Decimal, sign model.Sign) decimal.Decimal {
	if sign == model.SignMinus {
		return prior.Sub(signedAmount.Abs())
	}
	return prior.Add(signedAmount.Abs())
}

// ApplyBalances computes an account's balances after a posting. Both
// balances move on every posting, each by its own sign rule.
func ApplyBalances(account *model.Account, signedAmount decimal.Decimal, availableSign, blockedSign model.Sign) (available, blocked decimal.Decimal) {
	return Apply(account.AvailableBalance, signedAmount, availableSign),
		Apply(account.BlockedBalance, signedAmount, blockedSign)
}

// Invert flips a sign rule. The sending leg of a transfer applies the
// operation type's signs inverted.
func Invert(sign model.Sign) model.Sign {
	if sign == model.SignMinus {
		return model.SignPlus
	}
	return model.SignMinus
}

// CheckPrecision rejects amounts finer than the currency's minor unit.
// Amounts are never rounded.
func CheckPrecision(amount decimal.Decimal, currency string) error {
	places := int32(model.MinorUnits(currency))
	if !amount.Equal(amount.Truncate(places)) {
		return common.NewPostingError(common.CodeInvalidPrecision, 0,
			"amount %s has more than %d decimal places for %s", amount, places, currency)
	}
	return nil
}
