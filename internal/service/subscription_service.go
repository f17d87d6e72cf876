package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"aibot/backend/internal/model"
	"aibot/backend/internal/repository"
	"aibot/backend/internal/util"
	"aibot/backend/pkg/logger"

	"github.com/shopspring/decimal"
)

// SubscriptionService handles user-facing subscription lifecycle:
// allocating funds to a bot and pausing, resuming or stopping it.
type SubscriptionService struct {
	bots       BotStore
	subs       SubscriptionStore
	balances   BalanceStore
	reconciler *Reconciler
	notifier   Notifier
	log        *logger.Logger
}

func NewSubscriptionService(
	bots BotStore,
	subs SubscriptionStore,
	balances BalanceStore,
	reconciler *Reconciler,
	notifier Notifier,
) *SubscriptionService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &SubscriptionService{
		bots:       bots,
		subs:       subs,
		balances:   balances,
		reconciler: reconciler,
		notifier:   notifier,
		log:        logger.GetLogger().Component("subscription_service"),
	}
}

// Subscribe locks amount of the user's available balance against a bot for
// durationDays and opens an active subscription over it
func (s *SubscriptionService) Subscribe(ctx context.Context, userID string, req *model.SubscribeRequest) (*model.Subscription, error) {
	amount := util.Round(req.Amount)
	if !amount.IsPositive() {
		return nil, util.ErrValidation("amount must be greater than zero")
	}
	if req.DurationDays <= 0 {
		return nil, util.ErrValidation("duration_days must be greater than zero")
	}

	bot, err := s.bots.GetByID(ctx, req.BotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewAppError(http.StatusNotFound, util.ErrCodeBotNotFound, "Bot not found")
		}
		return nil, util.WrapError(http.StatusInternalServerError, util.ErrCodeInternal, "Failed to load bot", err)
	}
	if !bot.IsActive {
		return nil, util.NewAppError(http.StatusBadRequest, util.ErrCodeBotInactive, "Bot is not accepting subscriptions")
	}

	balance, err := s.balances.Mutate(ctx, userID, func(b *model.Balance) error {
		if b.AvailableBalanceUSD.LessThan(amount) {
			return util.ErrInsufficientBalance("Available balance is lower than the requested amount")
		}
		b.AvailableBalanceUSD = b.AvailableBalanceUSD.Sub(amount)
		b.LockedBalanceUSD = b.LockedBalanceUSD.Add(amount)
		util.NormalizeBalance(b, s.log)
		return nil
	})
	if err != nil {
		if util.GetAppError(err) != nil {
			return nil, err
		}
		return nil, util.WrapError(http.StatusInternalServerError, util.ErrCodeInternal, "Failed to lock funds", err)
	}

	now := time.Now().UTC()
	expiry := now.AddDate(0, 0, req.DurationDays)
	sub := &model.Subscription{
		UserID:                 userID,
		BotID:                  bot.ID,
		InvestmentAmount:       amount,
		AllocatedAmount:        amount,
		RemainingAllocation:    amount,
		CurrentProfit:          decimal.Zero,
		TotalProfitDistributed: decimal.Zero,
		Status:                 model.SubscriptionStatusActive,
		ExpiryDate:             &expiry,
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		s.refund(ctx, userID, amount)
		return nil, util.WrapError(http.StatusInternalServerError, util.ErrCodeInternal, "Failed to create subscription", err)
	}

	s.log.WithFields(map[string]interface{}{
		"subscription_id": sub.ID,
		"user_id":         userID,
		"bot_id":          bot.ID,
	}).Infof("Subscribed %s USD for %d days", util.FormatMoney(amount), req.DurationDays)

	s.notifier.NotifyBalance(ctx, balance)
	s.notifier.NotifySubscription(ctx, sub)
	return sub, nil
}

func (s *SubscriptionService) refund(ctx context.Context, userID string, amount decimal.Decimal) {
	_, err := s.balances.Mutate(ctx, userID, func(b *model.Balance) error {
		move := util.Min(amount, util.FloorZero(b.LockedBalanceUSD))
		b.LockedBalanceUSD = b.LockedBalanceUSD.Sub(move)
		b.AvailableBalanceUSD = b.AvailableBalanceUSD.Add(move)
		util.NormalizeBalance(b, s.log)
		return nil
	})
	if err != nil {
		s.log.Errorf("Failed to refund %s to user %s: %v", util.FormatMoney(amount), userID, err)
	}
}

// ListByUser returns the user's subscriptions
func (s *SubscriptionService) ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	subs, err := s.subs.ListByUser(ctx, userID)
	if err != nil {
		return nil, util.WrapError(http.StatusInternalServerError, util.ErrCodeInternal, "Failed to load subscriptions", err)
	}
	return subs, nil
}

// Pause stops trading on a subscription until it is resumed
func (s *SubscriptionService) Pause(ctx context.Context, userID, subscriptionID string) (*model.Subscription, error) {
	return s.setPaused(ctx, userID, subscriptionID, true)
}

// Resume re-enables trading on a paused subscription
func (s *SubscriptionService) Resume(ctx context.Context, userID, subscriptionID string) (*model.Subscription, error) {
	return s.setPaused(ctx, userID, subscriptionID, false)
}

func (s *SubscriptionService) setPaused(ctx context.Context, userID, subscriptionID string, paused bool) (*model.Subscription, error) {
	if _, err := s.owned(ctx, userID, subscriptionID); err != nil {
		return nil, err
	}

	sub, err := s.subs.Mutate(ctx, subscriptionID, func(sub *model.Subscription) error {
		if !sub.IsActive() || sub.IsStopped {
			return util.NewAppError(http.StatusConflict, util.ErrCodeSubscriptionClosed, "Subscription is closed")
		}
		sub.IsPaused = paused
		return nil
	})
	if err != nil {
		if util.GetAppError(err) != nil {
			return nil, err
		}
		return nil, util.WrapError(http.StatusInternalServerError, util.ErrCodeInternal, "Failed to update subscription", err)
	}

	s.notifier.NotifySubscription(ctx, sub)
	return sub, nil
}

// Stop cancels a subscription and returns its remaining allocation to the
// user's available balance
func (s *SubscriptionService) Stop(ctx context.Context, userID, subscriptionID string) (*model.Subscription, error) {
	if _, err := s.owned(ctx, userID, subscriptionID); err != nil {
		return nil, err
	}

	changed, err := s.reconciler.Release(ctx, subscriptionID, model.SubscriptionStatusCancelled)
	if err != nil {
		return nil, util.WrapError(http.StatusInternalServerError, util.ErrCodeInternal, "Failed to stop subscription", err)
	}
	if !changed {
		return nil, util.NewAppError(http.StatusConflict, util.ErrCodeSubscriptionClosed, "Subscription is already closed")
	}

	return s.subs.GetByID(ctx, subscriptionID)
}

// owned loads a subscription and checks it belongs to userID
func (s *SubscriptionService) owned(ctx context.Context, userID, subscriptionID string) (*model.Subscription, error) {
	sub, err := s.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, util.NewAppError(http.StatusNotFound, util.ErrCodeSubscriptionNotFound, "Subscription not found")
		}
		return nil, util.WrapError(http.StatusInternalServerError, util.ErrCodeInternal, "Failed to load subscription", err)
	}
	if sub.UserID != userID {
		// do not reveal other users' subscriptions
		return nil, util.NewAppError(http.StatusNotFound, util.ErrCodeSubscriptionNotFound, "Subscription not found")
	}
	return sub, nil
}
