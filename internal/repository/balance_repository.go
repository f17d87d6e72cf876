package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aibot/backend/internal/model"
	"aibot/backend/pkg/redis"
)

type BalanceRepository struct {
	redis *redis.Client
}

func NewBalanceRepository(redisClient *redis.Client) *BalanceRepository {
	return &BalanceRepository{
		redis: redisClient,
	}
}

// Get retrieves a user's balance. Returns ErrNotFound when the user has none yet.
func (r *BalanceRepository) Get(ctx context.Context, userID string) (*model.Balance, error) {
	var balance model.Balance
	if err := r.redis.GetJSON(ctx, redis.BalanceKey(userID), &balance); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("balance %s: %w", userID, ErrNotFound)
		}
		return nil, err
	}
	return &balance, nil
}

// Mutate applies fn to the user's balance as one atomic read-modify-write.
// A zeroed balance is created on first use.
func (r *BalanceRepository) Mutate(ctx context.Context, userID string, fn func(b *model.Balance) error) (*model.Balance, error) {
	return redis.UpdateJSON(ctx, r.redis, redis.BalanceKey(userID), func(b *model.Balance, exists bool) error {
		if !exists {
			*b = *model.NewBalance(userID)
		}
		if err := fn(b); err != nil {
			return err
		}
		b.UserID = userID
		b.UpdatedAt = time.Now().UTC()
		return nil
	})
}
