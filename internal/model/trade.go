package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade result constants
const (
	TradeResultWin  = "win"
	TradeResultLoss = "loss"
)

// TradeRecord is the append-only history row written once per executed
// trade cycle of a subscription
type TradeRecord struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
	UserID         string `json:"user_id"`
	BotID          string `json:"bot_id"`

	Asset       TradingAsset `json:"asset"` // snapshot at trade time
	TradeResult string       `json:"trade_result"`

	TradeAmount  decimal.Decimal `json:"trade_amount"`
	ProfitAmount decimal.Decimal `json:"profit_amount"`
	LossAmount   decimal.Decimal `json:"loss_amount"`

	// AssetPrice is best-effort; null when the oracle had no price
	AssetPrice decimal.NullDecimal `json:"asset_price"`

	ExecutedAt time.Time `json:"executed_at"`
}

// IsWin reports whether the trade was a win
func (t *TradeRecord) IsWin() bool {
	return t.TradeResult == TradeResultWin
}

// TradeSummary is one line of a batch report
type TradeSummary struct {
	SubscriptionID string          `json:"subscription_id"`
	UserID         string          `json:"user_id"`
	Asset          string          `json:"asset"`
	Result         string          `json:"result"`
	Profit         decimal.Decimal `json:"profit"`
	Loss           decimal.Decimal `json:"loss"`
}

// BatchReport aggregates one scheduler run
type BatchReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Processed  int            `json:"processed"`
	Expired    int            `json:"expired"`
	Skipped    int            `json:"skipped"`
	Trades     []TradeSummary `json:"trades"`
	Errors     []string       `json:"errors"`
}
