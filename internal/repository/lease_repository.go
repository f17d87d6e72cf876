package repository

import (
	"context"
	"time"

	"aibot/backend/pkg/redis"

	"github.com/google/uuid"
)

// LeaseRepository hands out short-lived per-subscription processing leases
// so overlapping scheduler runs, in this process or another, never trade
// the same subscription twice.
type LeaseRepository struct {
	redis *redis.Client
}

func NewLeaseRepository(redisClient *redis.Client) *LeaseRepository {
	return &LeaseRepository{
		redis: redisClient,
	}
}

// Acquire takes the lease for a subscription. ok is false if someone else holds it.
func (r *LeaseRepository) Acquire(ctx context.Context, subscriptionID string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.New().String()
	ok, err = r.redis.LockKey(ctx, redis.SubscriptionLeaseKey(subscriptionID), token, ttl)
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// Release drops the lease if token still owns it
func (r *LeaseRepository) Release(ctx context.Context, subscriptionID, token string) error {
	_, err := r.redis.UnlockKey(ctx, redis.SubscriptionLeaseKey(subscriptionID), token)
	return err
}
