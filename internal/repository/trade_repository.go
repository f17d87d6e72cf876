package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aibot/backend/internal/model"
	"aibot/backend/pkg/redis"

	"github.com/google/uuid"
)

type TradeRepository struct {
	redis *redis.Client
}

func NewTradeRepository(redisClient *redis.Client) *TradeRepository {
	return &TradeRepository{
		redis: redisClient,
	}
}

// Append stores a trade record once and indexes it by user and subscription.
// Records are never rewritten; a second append of the same id fails.
func (r *TradeRepository) Append(ctx context.Context, trade *model.TradeRecord) error {
	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}
	if trade.ExecutedAt.IsZero() {
		trade.ExecutedAt = time.Now().UTC()
	}

	ok, err := r.redis.SetNXJSON(ctx, redis.TradeKey(trade.ID), trade, 0)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("trade %s: %w", trade.ID, ErrAlreadyExists)
	}

	member := redis.Z{
		Score:  float64(trade.ExecutedAt.UnixMilli()),
		Member: trade.ID,
	}
	if err := r.redis.ZAdd(ctx, redis.UserTradesKey(trade.UserID), member); err != nil {
		return err
	}
	return r.redis.ZAdd(ctx, redis.SubscriptionTradesKey(trade.SubscriptionID), member)
}

// GetByID retrieves a trade record
func (r *TradeRepository) GetByID(ctx context.Context, tradeID string) (*model.TradeRecord, error) {
	var trade model.TradeRecord
	if err := r.redis.GetJSON(ctx, redis.TradeKey(tradeID), &trade); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("trade %s: %w", tradeID, ErrNotFound)
		}
		return nil, err
	}
	return &trade, nil
}

// ListByUser retrieves a user's trades newest first
func (r *TradeRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.TradeRecord, int64, error) {
	return r.listFromZSet(ctx, redis.UserTradesKey(userID), offset, limit)
}

// ListBySubscription retrieves a subscription's trades newest first
func (r *TradeRepository) ListBySubscription(ctx context.Context, subscriptionID string, offset, limit int) ([]*model.TradeRecord, int64, error) {
	return r.listFromZSet(ctx, redis.SubscriptionTradesKey(subscriptionID), offset, limit)
}

func (r *TradeRepository) listFromZSet(ctx context.Context, key string, offset, limit int) ([]*model.TradeRecord, int64, error) {
	total, err := r.redis.ZCard(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		return []*model.TradeRecord{}, total, nil
	}

	ids, err := r.redis.ZRevRange(ctx, key, int64(offset), int64(offset+limit-1))
	if err != nil {
		return nil, 0, err
	}

	trades := make([]*model.TradeRecord, 0, len(ids))
	for _, id := range ids {
		trade, err := r.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, 0, err
		}
		trades = append(trades, trade)
	}

	return trades, total, nil
}
