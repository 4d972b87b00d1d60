package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// JSON caches loader results in Redis as JSON under a namespace whose version
// can be bumped to invalidate every key at once. Concurrent misses for the
// same key share one loader call.
type JSON struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	group     singleflight.Group
}

// NewJSON builds a cache for namespace. A nil client disables caching and
// every fetch goes straight to the loader.
func NewJSON(client *redis.Client, namespace string, ttl time.Duration) *JSON {
	return &JSON{client: client, namespace: namespace, ttl: ttl}
}

func (c *JSON) versionKey() string {
	return c.namespace + ":version"
}

func (c *JSON) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, c.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// Key composes a versioned key from parts.
func (c *JSON) Key(ctx context.Context, parts ...string) (string, error) {
	if c == nil {
		return strings.Join(parts, ":"), nil
	}
	joined := strings.Join(append([]string{c.namespace}, parts...), ":")
	if c.client == nil {
		return joined, nil
	}
	ver, err := c.version(ctx)
	if err != nil {
		return "", fmt.Errorf("platform/cache: version: %w", err)
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// Fetch decodes the cached value for parts into dest, populating it with
// loader on a miss.
func (c *JSON) Fetch(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	if loader == nil {
		return errors.New("platform/cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}

	key, err := c.Key(ctx, parts...)
	if err != nil {
		return err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("platform/cache: get %s: %w", key, err)
	}

	raw, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("platform/cache: set %s: %w", key, err)
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

// Bump invalidates every key in the namespace.
func (c *JSON) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, c.versionKey()).Err(); err != nil {
		return fmt.Errorf("platform/cache: bump: %w", err)
	}
	return nil
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
