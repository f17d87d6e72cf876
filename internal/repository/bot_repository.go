// Package repository provides data access for the application and interacts with Redis.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aibot/backend/internal/model"
	"aibot/backend/pkg/redis"
)

var (
	// ErrNotFound is returned when an entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a write-once entity is written twice
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict is returned when an atomic update kept racing other writers
	ErrConflict = redis.ErrTxConflict
)

type BotRepository struct {
	redis *redis.Client
}

func NewBotRepository(redisClient *redis.Client) *BotRepository {
	return &BotRepository{
		redis: redisClient,
	}
}

// Save creates or replaces a bot and keeps the active index in sync
func (r *BotRepository) Save(ctx context.Context, bot *model.Bot) error {
	if bot.ID == "" {
		return fmt.Errorf("bot id is required")
	}

	now := time.Now().UTC()
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now

	if err := r.redis.SetJSON(ctx, redis.BotKey(bot.ID), bot, 0); err != nil {
		return err
	}
	if err := r.redis.SAdd(ctx, redis.AllBotsKey(), bot.ID); err != nil {
		return err
	}

	if bot.IsActive {
		return r.redis.SAdd(ctx, redis.ActiveBotsKey(), bot.ID)
	}
	return r.redis.SRem(ctx, redis.ActiveBotsKey(), bot.ID)
}

// GetByID retrieves a bot by ID
func (r *BotRepository) GetByID(ctx context.Context, botID string) (*model.Bot, error) {
	var bot model.Bot
	err := r.redis.GetJSON(ctx, redis.BotKey(botID), &bot)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("bot %s: %w", botID, ErrNotFound)
		}
		return nil, err
	}
	return &bot, nil
}

// ListActive retrieves all bots flagged active
func (r *BotRepository) ListActive(ctx context.Context) ([]*model.Bot, error) {
	bots, err := r.listFromSet(ctx, redis.ActiveBotsKey())
	if err != nil {
		return nil, err
	}

	// the index may lag an admin edit; trust the record
	active := bots[:0]
	for _, bot := range bots {
		if bot.IsActive {
			active = append(active, bot)
		}
	}
	return active, nil
}

// ListAll retrieves every bot
func (r *BotRepository) ListAll(ctx context.Context) ([]*model.Bot, error) {
	return r.listFromSet(ctx, redis.AllBotsKey())
}

func (r *BotRepository) listFromSet(ctx context.Context, setKey string) ([]*model.Bot, error) {
	botIDs, err := r.redis.SMembers(ctx, setKey)
	if err != nil {
		return nil, err
	}

	bots := make([]*model.Bot, 0, len(botIDs))
	for _, id := range botIDs {
		bot, err := r.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		bots = append(bots, bot)
	}

	return bots, nil
}
