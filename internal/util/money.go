package util

import (
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places stored for USD and asset amounts
const MoneyScale = 8

// Round rounds d half-away-from-zero to MoneyScale places
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// FloorZero returns d, or zero if d is negative
func FloorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Min returns the smaller of a and b
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Percent returns amount * pct / 100
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(decimal.NewFromInt(100))
}

// FormatMoney renders d with MoneyScale fixed places, e.g. "1000.00000000"
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}
