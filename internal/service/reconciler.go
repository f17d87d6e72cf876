package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aibot/backend/internal/model"
	"aibot/backend/internal/repository"
	"aibot/backend/internal/service/simulator"
	"aibot/backend/internal/util"
	"aibot/backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reconciler applies one simulated trade to the three ledgers a
// subscription touches: the subscription itself, the user's balance and the
// user's portfolio. Each ledger write is atomic on its own; a failure after
// the subscription write leaves that write in place and is reported.
type Reconciler struct {
	subs       SubscriptionStore
	balances   BalanceStore
	portfolio  PortfolioStore
	trades     TradeStore
	oracle     PriceOracle
	notifier   Notifier
	rng        simulator.RandSource
	minSpacing time.Duration
	now        func() time.Time
	log        *logger.Logger
}

// ReconcilerOption customises a Reconciler
type ReconcilerOption func(*Reconciler)

// WithRand sets the random source used for asset selection and trade draws
func WithRand(rng simulator.RandSource) ReconcilerOption {
	return func(r *Reconciler) { r.rng = rng }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// WithNotifier sets where trade and balance updates are pushed
func WithNotifier(n Notifier) ReconcilerOption {
	return func(r *Reconciler) { r.notifier = n }
}

// WithMinTradeSpacing rejects a trade when the subscription traded less than d ago
func WithMinTradeSpacing(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.minSpacing = d }
}

func NewReconciler(
	subs SubscriptionStore,
	balances BalanceStore,
	portfolio PortfolioStore,
	trades TradeStore,
	oracle PriceOracle,
	opts ...ReconcilerOption,
) *Reconciler {
	r := &Reconciler{
		subs:      subs,
		balances:  balances,
		portfolio: portfolio,
		trades:    trades,
		oracle:    oracle,
		notifier:  nopNotifier{},
		rng:       simulator.NewRand(),
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.GetLogger().Component("reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile simulates one trade for sub and applies it.
// Returns simulator.ErrNothingToTrade when the ceiling is zero and
// ErrSubscriptionNotTradeable when the stored subscription can no longer trade.
// On a balance or portfolio failure the returned summary is nil and the error
// wraps the cause; the subscription update and trade record stay applied.
func (r *Reconciler) Reconcile(ctx context.Context, sub *model.Subscription, bot *model.Bot) (*model.TradeSummary, error) {
	locked := decimal.Zero
	balance, err := r.balances.Get(ctx, sub.UserID)
	switch {
	case err == nil:
		locked = balance.LockedBalanceUSD
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("load balance: %w", err)
	}

	params := simulator.ParamsFromBot(bot)
	asset := simulator.SelectAsset(bot.TradingAssets, bot.AssetDistribution, r.rng)

	outcome, err := simulator.Simulate(params, sub.RemainingAllocation, locked, r.rng)
	if err != nil {
		return nil, err
	}

	now := r.now()
	updated, err := r.subs.Mutate(ctx, sub.ID, func(s *model.Subscription) error {
		if !s.IsActive() || s.IsPaused || s.IsStopped || s.IsExpired(now) {
			return ErrSubscriptionNotTradeable
		}
		if s.TradedWithin(now, r.minSpacing) {
			return ErrSubscriptionNotTradeable
		}
		// the outcome was sized against sub; a committed allocation below it is stale
		if s.RemainingAllocation.LessThan(sub.RemainingAllocation) {
			return ErrSubscriptionNotTradeable
		}

		if !outcome.IsWin {
			outcome.Loss = util.Min(outcome.Loss, s.RemainingAllocation)
			s.RemainingAllocation = util.FloorZero(s.RemainingAllocation.Sub(outcome.Loss))
		}
		s.CurrentProfit = s.CurrentProfit.Add(outcome.Profit).Sub(outcome.Loss)
		s.TotalProfitDistributed = s.TotalProfitDistributed.Add(outcome.Profit)
		s.LastTradeDate = &now
		if outcome.IsWin {
			s.LastProfitDate = &now
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotTradeable) {
			return nil, err
		}
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	price, hasPrice := r.lookupPrice(ctx, asset)

	trade := &model.TradeRecord{
		ID:             uuid.New().String(),
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		BotID:          bot.ID,
		Asset:          asset,
		TradeResult:    outcome.Result(),
		TradeAmount:    outcome.TradeAmount,
		ProfitAmount:   outcome.Profit,
		LossAmount:     outcome.Loss,
		AssetPrice:     decimal.NullDecimal{Decimal: price, Valid: hasPrice},
		ExecutedAt:     now,
	}
	if err := r.trades.Append(ctx, trade); err != nil {
		return nil, fmt.Errorf("append trade record: %w", err)
	}

	newBalance, err := r.balances.Mutate(ctx, sub.UserID, func(b *model.Balance) error {
		applyTradeToBalance(b, outcome)
		util.NormalizeBalance(b, r.log)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	if outcome.IsWin {
		if !hasPrice {
			price = decimal.NewFromInt(1)
		}
		if err := r.addToPortfolio(ctx, sub.UserID, asset, outcome.Profit, price); err != nil {
			return nil, fmt.Errorf("update portfolio: %w", err)
		}
	}

	r.notifier.NotifyTrade(ctx, trade)
	r.notifier.NotifyBalance(ctx, newBalance)
	r.notifier.NotifySubscription(ctx, updated)

	return &model.TradeSummary{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Asset:          asset.Symbol,
		Result:         trade.TradeResult,
		Profit:         outcome.Profit,
		Loss:           outcome.Loss,
	}, nil
}

// applyTradeToBalance credits profit to available, or takes a loss from
// locked first and the rest from available.
func applyTradeToBalance(b *model.Balance, outcome simulator.Outcome) {
	if outcome.IsWin {
		b.AvailableBalanceUSD = b.AvailableBalanceUSD.Add(outcome.Profit)
		b.TotalBalanceUSD = b.TotalBalanceUSD.Add(outcome.Profit)
		return
	}

	fromLocked := util.Min(outcome.Loss, util.FloorZero(b.LockedBalanceUSD))
	b.LockedBalanceUSD = b.LockedBalanceUSD.Sub(fromLocked)
	if rest := outcome.Loss.Sub(fromLocked); rest.IsPositive() {
		b.AvailableBalanceUSD = util.FloorZero(b.AvailableBalanceUSD.Sub(rest))
	}
	b.TotalBalanceUSD = b.AvailableBalanceUSD.Add(b.LockedBalanceUSD)
}

// addToPortfolio books usdValue worth of asset at price using a
// weighted-average cost basis
func (r *Reconciler) addToPortfolio(ctx context.Context, userID string, asset model.TradingAsset, usdValue, price decimal.Decimal) error {
	quantity := util.Round(usdValue.Div(price))

	_, err := r.portfolio.Upsert(ctx, userID, asset.Symbol, func(h *model.PortfolioHolding, exists bool) error {
		if !exists || h.Amount.IsZero() {
			h.AssetID = asset.ID
			h.Name = asset.Name
			h.LogoURL = asset.LogoURL
			h.Amount = quantity
			h.AverageBuyPrice = price
		} else {
			total := h.Amount.Add(quantity)
			cost := h.Amount.Mul(h.AverageBuyPrice).Add(quantity.Mul(price))
			h.Amount = total
			h.AverageBuyPrice = util.Round(cost.Div(total))
		}
		h.CurrentValue = util.Round(h.Amount.Mul(price))
		return nil
	})
	return err
}

func (r *Reconciler) lookupPrice(ctx context.Context, asset model.TradingAsset) (decimal.Decimal, bool) {
	if r.oracle == nil {
		return decimal.Zero, false
	}
	return r.oracle.GetPrice(ctx, asset.ID)
}

// Expire closes a subscription whose expiry date passed, handing its
// remaining allocation back from locked to available. It reports whether
// anything changed; a drained subscription or a second call is a no-op.
func (r *Reconciler) Expire(ctx context.Context, sub *model.Subscription) (bool, error) {
	return r.Release(ctx, sub.ID, model.SubscriptionStatusCompleted)
}

// Release moves a subscription out of active into status and returns
// min(remaining, locked) from locked to available. Subscriptions that are no
// longer active are left untouched, as are drained ones being completed.
func (r *Reconciler) Release(ctx context.Context, subscriptionID, status string) (bool, error) {
	var (
		released decimal.Decimal
		changed  bool
	)

	updated, err := r.subs.Mutate(ctx, subscriptionID, func(s *model.Subscription) error {
		released, changed = decimal.Zero, false
		if !s.IsActive() {
			return nil
		}
		if status == model.SubscriptionStatusCompleted && !s.RemainingAllocation.IsPositive() {
			return nil
		}
		released = util.FloorZero(s.RemainingAllocation)
		s.RemainingAllocation = decimal.Zero
		s.Status = status
		if status == model.SubscriptionStatusCancelled {
			s.IsStopped = true
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("close subscription: %w", err)
	}
	if !changed {
		return false, nil
	}
	r.notifier.NotifySubscription(ctx, updated)

	if !released.IsPositive() {
		return true, nil
	}

	newBalance, err := r.balances.Mutate(ctx, updated.UserID, func(b *model.Balance) error {
		move := util.Min(released, util.FloorZero(b.LockedBalanceUSD))
		b.LockedBalanceUSD = b.LockedBalanceUSD.Sub(move)
		b.AvailableBalanceUSD = b.AvailableBalanceUSD.Add(move)
		util.NormalizeBalance(b, r.log)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("release allocation: %w", err)
	}
	r.notifier.NotifyBalance(ctx, newBalance)

	r.log.WithFields(map[string]interface{}{
		"subscription_id": subscriptionID,
		"user_id":         updated.UserID,
	}).Infof("Subscription %s -> %s, released %s", subscriptionID, status, util.FormatMoney(released))
	return true, nil
}
