package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"aibot/backend/internal/model"
	"aibot/backend/pkg/redis"

	"github.com/google/uuid"
)

type PortfolioRepository struct {
	redis *redis.Client
}

func NewPortfolioRepository(redisClient *redis.Client) *PortfolioRepository {
	return &PortfolioRepository{
		redis: redisClient,
	}
}

// Get retrieves the user's holding for a symbol
func (r *PortfolioRepository) Get(ctx context.Context, userID, symbol string) (*model.PortfolioHolding, error) {
	var h model.PortfolioHolding
	if err := r.redis.GetJSON(ctx, redis.PortfolioKey(userID, symbol), &h); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("holding %s/%s: %w", userID, symbol, ErrNotFound)
		}
		return nil, err
	}
	return &h, nil
}

// ListByUser retrieves all holdings of a user ordered by symbol
func (r *PortfolioRepository) ListByUser(ctx context.Context, userID string) ([]*model.PortfolioHolding, error) {
	symbols, err := r.redis.SMembers(ctx, redis.UserPortfolioKey(userID))
	if err != nil {
		return nil, err
	}
	sort.Strings(symbols)

	holdings := make([]*model.PortfolioHolding, 0, len(symbols))
	for _, symbol := range symbols {
		h, err := r.Get(ctx, userID, symbol)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, nil
}

// Upsert creates or updates the user's holding for a symbol atomically.
// fn receives exists=false for a fresh holding with identity fields filled in.
func (r *PortfolioRepository) Upsert(ctx context.Context, userID, symbol string, fn func(h *model.PortfolioHolding, exists bool) error) (*model.PortfolioHolding, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("holding symbol is required")
	}

	now := time.Now().UTC()
	h, err := redis.UpdateJSON(ctx, r.redis, redis.PortfolioKey(userID, symbol), func(h *model.PortfolioHolding, exists bool) error {
		if !exists {
			h.ID = uuid.New().String()
			h.UserID = userID
			h.Symbol = symbol
			h.CreatedAt = now
		}
		if err := fn(h, exists); err != nil {
			return err
		}
		h.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := r.redis.SAdd(ctx, redis.UserPortfolioKey(userID), symbol); err != nil {
		return nil, err
	}
	return h, nil
}
