package handlers

import (
	"bankledger/internal/money"

	"github.com/shopspring/decimal"
)

// parseAmount accepts a positive amount with at most two decimals.
func parseAmount(amount money.Amount) (decimal.Decimal, error) {
	if !amount.Set {
		return decimal.Zero, money.ErrInvalidAmount
	}
	return money.ParsePositive(amount.Raw)
}

// parseOpeningBalance treats a missing balance as zero.
func parseOpeningBalance(amount money.Amount) (decimal.Decimal, error) {
	if !amount.Set {
		return decimal.Zero, nil
	}
	value, err := amount.Decimal()
	if err != nil {
		return decimal.Zero, err
	}
	if value.IsNegative() {
		return decimal.Zero, money.ErrInvalidAmount
	}
	return value, nil
}
