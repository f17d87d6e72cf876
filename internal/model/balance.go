package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance holds a user's USD balance tiers.
// At rest TotalBalanceUSD == AvailableBalanceUSD + LockedBalanceUSD.
type Balance struct {
	UserID              string          `json:"user_id"`
	TotalBalanceUSD     decimal.Decimal `json:"total_balance_usd"`
	AvailableBalanceUSD decimal.Decimal `json:"available_balance_usd"`
	LockedBalanceUSD    decimal.Decimal `json:"locked_balance_usd"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// NewBalance returns the zeroed balance a user starts with
func NewBalance(userID string) *Balance {
	return &Balance{
		UserID:              userID,
		TotalBalanceUSD:     decimal.Zero,
		AvailableBalanceUSD: decimal.Zero,
		LockedBalanceUSD:    decimal.Zero,
	}
}

// PortfolioHolding is a user's position in one asset, keyed by symbol
type PortfolioHolding struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	AssetID         string          `json:"asset_id"`
	Symbol          string          `json:"symbol"`
	Name            string          `json:"name"`
	LogoURL         string          `json:"logo_url,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	AverageBuyPrice decimal.Decimal `json:"average_buy_price"`
	CurrentValue    decimal.Decimal `json:"current_value"` // USD
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
