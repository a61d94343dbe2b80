package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "logistics"

// JSON stores loader results in Redis as JSON documents.
type JSON struct {
	client *redis.Client
	ttl    time.Duration
}

// NewJSON instantiates the cache helper. A nil client disables caching.
func NewJSON(client *redis.Client, ttl time.Duration) *JSON {
	return &JSON{client: client, ttl: ttl}
}

// Key joins the parts under the application prefix.
func Key(parts ...string) string {
	return keyPrefix + ":" + strings.Join(parts, ":")
}

// Fetch loads a cached value into dest or populates it using the loader.
func (c *JSON) Fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		return load(ctx, dest, loader)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Invalidate removes the given keys.
func (c *JSON) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func load(ctx context.Context, dest any, loader func(context.Context) (any, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
