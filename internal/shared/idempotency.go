package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which request keys were already handled, so a
// repeated submission can be answered with the first result.
type IdempotencyStore struct {
	client *redis.Client
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

func idempotencyKey(module, key string) string {
	return "idempotency:" + module + ":" + key
}

// Claim records value under key for ttl. When key is already held it returns
// the stored value and ErrIdempotencyConflict.
func (s *IdempotencyStore) Claim(ctx context.Context, module, key, value string, ttl time.Duration) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("idempotency store not initialised")
	}
	if key == "" {
		return "", errors.New("idempotency key required")
	}
	if module == "" {
		return "", errors.New("idempotency module required")
	}
	ok, err := s.client.SetNX(ctx, idempotencyKey(module, key), value, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("shared: idempotency claim: %w", err)
	}
	if ok {
		return value, nil
	}
	existing, err := s.client.Get(ctx, idempotencyKey(module, key)).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; the caller may retry.
		return "", ErrIdempotencyConflict
	}
	if err != nil {
		return "", fmt.Errorf("shared: idempotency lookup: %w", err)
	}
	return existing, ErrIdempotencyConflict
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, module, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Del(ctx, idempotencyKey(module, key)).Err(); err != nil {
		return fmt.Errorf("shared: idempotency delete: %w", err)
	}
	return nil
}
