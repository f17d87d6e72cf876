package service

import (
	"context"
	"errors"
	"time"

	"aibot/backend/internal/model"

	"github.com/shopspring/decimal"
)

var (
	// ErrLeaseHeld is returned when another worker owns a subscription's lease
	ErrLeaseHeld = errors.New("subscription lease held by another worker")
	// ErrSubscriptionNotTradeable is returned when a subscription changed
	// state between selection and reconciliation
	ErrSubscriptionNotTradeable = errors.New("subscription not tradeable")
	// ErrRunInProgress is returned when a batch is requested while one is executing
	ErrRunInProgress = errors.New("previous run still in progress")
)

// The engine reaches the ledger only through these interfaces. The Redis
// repositories implement them; tests use an in-memory ledger.

type BotStore interface {
	ListActive(ctx context.Context) ([]*model.Bot, error)
	GetByID(ctx context.Context, botID string) (*model.Bot, error)
}

type SubscriptionStore interface {
	ListByBot(ctx context.Context, botID string) ([]*model.Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error)
	GetByID(ctx context.Context, id string) (*model.Subscription, error)
	Create(ctx context.Context, sub *model.Subscription) error
	Mutate(ctx context.Context, id string, fn func(sub *model.Subscription) error) (*model.Subscription, error)
}

type BalanceStore interface {
	Get(ctx context.Context, userID string) (*model.Balance, error)
	Mutate(ctx context.Context, userID string, fn func(b *model.Balance) error) (*model.Balance, error)
}

type PortfolioStore interface {
	ListByUser(ctx context.Context, userID string) ([]*model.PortfolioHolding, error)
	Upsert(ctx context.Context, userID, symbol string, fn func(h *model.PortfolioHolding, exists bool) error) (*model.PortfolioHolding, error)
}

type TradeStore interface {
	Append(ctx context.Context, trade *model.TradeRecord) error
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.TradeRecord, int64, error)
}

// SubscriptionGuard hands out per-subscription processing leases
type SubscriptionGuard interface {
	Acquire(ctx context.Context, subscriptionID string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, subscriptionID, token string) error
}

// PriceOracle answers best-effort USD prices. ok is false when no price is
// available; it never fails otherwise.
type PriceOracle interface {
	GetPrice(ctx context.Context, assetID string) (price decimal.Decimal, ok bool)
}

// Notifier pushes ledger changes to connected users
type Notifier interface {
	NotifyTrade(ctx context.Context, trade *model.TradeRecord)
	NotifyBalance(ctx context.Context, balance *model.Balance)
	NotifySubscription(ctx context.Context, sub *model.Subscription)
}

type nopNotifier struct{}

func (nopNotifier) NotifyTrade(context.Context, *model.TradeRecord)         {}
func (nopNotifier) NotifyBalance(context.Context, *model.Balance)           {}
func (nopNotifier) NotifySubscription(context.Context, *model.Subscription) {}
