package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestFetchCachesLoaderResult(t *testing.T) {
	mr, client := newRedis(t)
	c := NewJSON(client, "categories", time.Minute)
	ctx := context.Background()

	var calls int32
	loader := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return []string{"Apparel", "Bags"}, nil
	}

	var first, second []string
	require.NoError(t, c.Fetch(ctx, &first, loader, "all"))
	require.NoError(t, c.Fetch(ctx, &second, loader, "all"))
	require.Equal(t, []string{"Apparel", "Bags"}, second)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	key, err := c.Key(ctx, "all")
	require.NoError(t, err)
	require.True(t, mr.Exists(key))
	require.Equal(t, time.Minute, mr.TTL(key))
}

func TestBumpInvalidates(t *testing.T) {
	_, client := newRedis(t)
	c := NewJSON(client, "categories", time.Minute)
	ctx := context.Background()

	var calls int32
	loader := func(context.Context) (any, error) {
		n := atomic.AddInt32(&calls, 1)
		return n, nil
	}

	var got int
	require.NoError(t, c.Fetch(ctx, &got, loader, "all"))
	require.Equal(t, 1, got)
	require.NoError(t, c.Bump(ctx))
	require.NoError(t, c.Fetch(ctx, &got, loader, "all"))
	require.Equal(t, 2, got)
}

func TestLoaderErrorsAreNotCached(t *testing.T) {
	_, client := newRedis(t)
	c := NewJSON(client, "categories", time.Minute)
	ctx := context.Background()
	boom := errors.New("boom")

	var got []string
	err := c.Fetch(ctx, &got, func(context.Context) (any, error) { return nil, boom }, "all")
	require.ErrorIs(t, err, boom)

	require.NoError(t, c.Fetch(ctx, &got, func(context.Context) (any, error) { return []string{"Bags"}, nil }, "all"))
	require.Equal(t, []string{"Bags"}, got)
}

func TestConcurrentMissesShareLoader(t *testing.T) {
	_, client := newRedis(t)
	c := NewJSON(client, "categories", time.Minute)
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []string{"Bags"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got []string
			require.NoError(t, c.Fetch(ctx, &got, loader, "all"))
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	require.LessOrEqual(t, atomic.LoadInt32(&calls), int32(4))
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestNilClientPassesThrough(t *testing.T) {
	c := NewJSON(nil, "categories", time.Minute)
	var got []string
	require.NoError(t, c.Fetch(context.Background(), &got, func(context.Context) (any, error) {
		return []string{"Bags"}, nil
	}, "all"))
	require.Equal(t, []string{"Bags"}, got)
}
