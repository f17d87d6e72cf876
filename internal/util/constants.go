package util

import "github.com/shopspring/decimal"

// Ledger safety thresholds. Values past these indicate corruption rather
// than a real balance and are logged loudly.

var (
	// MaxReasonableBalanceUSD is the largest balance tier considered sane (1 billion USD)
	MaxReasonableBalanceUSD = decimal.NewFromInt(1_000_000_000)

	// DustThreshold is the smallest non-zero amount kept after rounding
	DustThreshold = decimal.New(1, -MoneyScale)
)
