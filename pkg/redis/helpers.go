package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// MaxTxRetries bounds optimistic transaction attempts in UpdateJSON
const MaxTxRetries = 10

// ErrTxConflict is returned when UpdateJSON keeps losing the WATCH race
var ErrTxConflict = errors.New("redis: optimistic transaction retries exhausted")

// SetJSON sets a key with JSON-encoded value
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, expiration)
}

// GetJSON gets a key and decodes JSON value
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// SetNXJSON stores value only if key is absent. Returns false when the key existed.
func (c *Client) SetNXJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	return c.SetNX(ctx, key, data, expiration)
}

// UpdateJSON applies fn to the JSON value at key as one atomic read-modify-write
// (WATCH/MULTI/EXEC), retrying when another writer touched the key in between.
// fn is called with a fresh zero value and exists=false when the key is absent;
// returning an error aborts without writing. The committed value is returned.
func UpdateJSON[T any](ctx context.Context, c *Client, key string, fn func(v *T, exists bool) error) (*T, error) {
	var committed *T

	txf := func(tx *redis.Tx) error {
		v := new(T)
		exists := true

		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			exists = false
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, v); err != nil {
				return err
			}
		}

		if err := fn(v, exists); err != nil {
			return err
		}

		out, err := json.Marshal(v)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			committed = v
		}
		return err
	}

	for attempt := 0; attempt < MaxTxRetries; attempt++ {
		err := c.client.Watch(ctx, txf, key)
		if err == nil {
			return committed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}

	return nil, ErrTxConflict
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockKey acquires a lease on key owned by token
func (c *Client) LockKey(ctx context.Context, key, token string, expiration time.Duration) (bool, error) {
	return c.SetNX(ctx, key, token, expiration)
}

// UnlockKey releases the lease only if it is still owned by token
func (c *Client) UnlockKey(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, c.client, []string{key}, token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
