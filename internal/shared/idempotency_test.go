package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdempotencyStore(t *testing.T) (*IdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotencyStore(client), mr
}

func TestClaimReturnsFirstValue(t *testing.T) {
	store, mr := newIdempotencyStore(t)
	ctx := context.Background()

	got, err := store.Claim(ctx, "orders.export", "7|status=paid", "exp-1", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "exp-1", got)

	got, err = store.Claim(ctx, "orders.export", "7|status=paid", "exp-2", 10*time.Second)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.Equal(t, "exp-1", got)

	mr.FastForward(11 * time.Second)
	got, err = store.Claim(ctx, "orders.export", "7|status=paid", "exp-3", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "exp-3", got)
}

func TestDeleteReleasesKey(t *testing.T) {
	store, _ := newIdempotencyStore(t)
	ctx := context.Background()

	_, err := store.Claim(ctx, "orders.export", "k", "a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "orders.export", "k"))

	got, err := store.Claim(ctx, "orders.export", "k", "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "b", got)
}

func TestClaimValidatesInput(t *testing.T) {
	store, _ := newIdempotencyStore(t)
	_, err := store.Claim(context.Background(), "", "k", "v", time.Minute)
	assert.Error(t, err)
	_, err = store.Claim(context.Background(), "m", "", "v", time.Minute)
	assert.Error(t, err)

	var nilStore *IdempotencyStore
	_, err = nilStore.Claim(context.Background(), "m", "k", "v", time.Minute)
	assert.Error(t, err)
}
