package service

import (
	"context"
	"errors"
	"time"

	"aibot/backend/pkg/logger"
	"aibot/backend/pkg/redis"

	"github.com/shopspring/decimal"
)

// PriceSource fetches a live USD price. *coingecko.Client satisfies it.
type PriceSource interface {
	GetUSDPrice(ctx context.Context, assetID string) (decimal.Decimal, error)
}

// CachedPriceOracle looks prices up through a Redis cache in front of a
// PriceSource. Every lookup is bounded by timeout and failures degrade to
// "no price".
type CachedPriceOracle struct {
	source   PriceSource
	redis    *redis.Client
	timeout  time.Duration
	cacheTTL time.Duration
	log      *logger.Logger
}

func NewCachedPriceOracle(source PriceSource, redisClient *redis.Client, timeout, cacheTTL time.Duration) *CachedPriceOracle {
	return &CachedPriceOracle{
		source:   source,
		redis:    redisClient,
		timeout:  timeout,
		cacheTTL: cacheTTL,
		log:      logger.GetLogger().Component("price_oracle"),
	}
}

// GetPrice returns the USD price of an asset if one can be found in time
func (o *CachedPriceOracle) GetPrice(ctx context.Context, assetID string) (decimal.Decimal, bool) {
	if assetID == "" {
		return decimal.Zero, false
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	key := redis.CachePriceKey(assetID)
	if o.redis != nil {
		cached, err := o.redis.Get(ctx, key)
		if err == nil {
			if price, err := decimal.NewFromString(cached); err == nil && price.IsPositive() {
				return price, true
			}
		} else if !errors.Is(err, redis.Nil) {
			o.log.Warnf("Price cache read failed for %s: %v", assetID, err)
		}
	}

	if o.source == nil {
		return decimal.Zero, false
	}

	price, err := o.source.GetUSDPrice(ctx, assetID)
	if err != nil || !price.IsPositive() {
		o.log.Debugf("No price for %s: %v", assetID, err)
		return decimal.Zero, false
	}

	if o.redis != nil && o.cacheTTL > 0 {
		if err := o.redis.Set(ctx, key, price.String(), o.cacheTTL); err != nil {
			o.log.Warnf("Price cache write failed for %s: %v", assetID, err)
		}
	}
	return price, true
}
