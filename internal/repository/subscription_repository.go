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

type SubscriptionRepository struct {
	redis *redis.Client
}

func NewSubscriptionRepository(redisClient *redis.Client) *SubscriptionRepository {
	return &SubscriptionRepository{
		redis: redisClient,
	}
}

// Create stores a new subscription and indexes it by bot and user
func (r *SubscriptionRepository) Create(ctx context.Context, sub *model.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	ok, err := r.redis.SetNXJSON(ctx, redis.SubscriptionKey(sub.ID), sub, 0)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("subscription %s: %w", sub.ID, ErrAlreadyExists)
	}

	if err := r.redis.SAdd(ctx, redis.BotSubscriptionsKey(sub.BotID), sub.ID); err != nil {
		return err
	}
	return r.redis.SAdd(ctx, redis.UserSubscriptionsKey(sub.UserID), sub.ID)
}

// GetByID retrieves a subscription
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*model.Subscription, error) {
	var sub model.Subscription
	if err := r.redis.GetJSON(ctx, redis.SubscriptionKey(id), &sub); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &sub, nil
}

// ListByBot retrieves every subscription referencing the bot
func (r *SubscriptionRepository) ListByBot(ctx context.Context, botID string) ([]*model.Subscription, error) {
	return r.listFromSet(ctx, redis.BotSubscriptionsKey(botID))
}

// ListByUser retrieves a user's subscriptions
func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return r.listFromSet(ctx, redis.UserSubscriptionsKey(userID))
}

// Mutate applies fn to the stored subscription atomically and returns the
// committed value. fn errors abort the write.
func (r *SubscriptionRepository) Mutate(ctx context.Context, id string, fn func(sub *model.Subscription) error) (*model.Subscription, error) {
	sub, err := redis.UpdateJSON(ctx, r.redis, redis.SubscriptionKey(id), func(sub *model.Subscription, exists bool) error {
		if !exists {
			return fmt.Errorf("subscription %s: %w", id, ErrNotFound)
		}
		if err := fn(sub); err != nil {
			return err
		}
		sub.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *SubscriptionRepository) listFromSet(ctx context.Context, setKey string) ([]*model.Subscription, error) {
	ids, err := r.redis.SMembers(ctx, setKey)
	if err != nil {
		return nil, err
	}

	subs := make([]*model.Subscription, 0, len(ids))
	for _, id := range ids {
		sub, err := r.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, nil
}
