package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscription status constants
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCompleted = "completed"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription is a user's position in a bot
type Subscription struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	BotID  string `json:"bot_id"`

	InvestmentAmount decimal.Decimal `json:"investment_amount"` // informational
	AllocatedAmount  decimal.Decimal `json:"allocated_amount"`  // locked at subscription time

	// RemainingAllocation is the live ceiling for trades and loss absorption.
	// Always within [0, AllocatedAmount].
	RemainingAllocation decimal.Decimal `json:"remaining_allocation"`

	CurrentProfit          decimal.Decimal `json:"current_profit"`           // profit minus loss, may be negative
	TotalProfitDistributed decimal.Decimal `json:"total_profit_distributed"` // gains only

	Status    string `json:"status"`
	IsPaused  bool   `json:"is_paused"`
	IsStopped bool   `json:"is_stopped"`

	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	LastTradeDate  *time.Time `json:"last_trade_date,omitempty"`
	LastProfitDate *time.Time `json:"last_profit_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the subscription status is active
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// IsExpired reports whether the expiry date lies before now
func (s *Subscription) IsExpired(now time.Time) bool {
	return s.ExpiryDate != nil && s.ExpiryDate.Before(now)
}

// TradedWithin reports whether the last trade happened less than d before now
func (s *Subscription) TradedWithin(now time.Time, d time.Duration) bool {
	if s.LastTradeDate == nil || d <= 0 {
		return false
	}
	return now.Sub(*s.LastTradeDate) < d
}

// SubscribeRequest represents a user's request to allocate funds to a bot
type SubscribeRequest struct {
	BotID        string          `json:"bot_id" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
	DurationDays int             `json:"duration_days" binding:"required,gt=0,lte=3650"`
}
