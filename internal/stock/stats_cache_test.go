package stock

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

func newTestCache(t *testing.T) (*StatsCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStatsCache(client, time.Minute, nil), mr
}

func TestStatsCacheSharesConcurrentMisses(t *testing.T) {
	cache, _ := newTestCache(t)
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (Statistics, error) {
		calls.Add(1)
		<-release
		return Statistics{TotalItems: 7}, nil
	}

	var wg sync.WaitGroup
	results := make([]Statistics, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := cache.Fetch(context.Background(), loader)
			require.NoError(t, err)
			results[i] = s
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	for _, s := range results {
		require.Equal(t, 7, s.TotalItems)
	}
}

func TestStatsCacheBumpAndStore(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, Statistics{TotalItems: 2}))
	s, err := cache.Fetch(ctx, func(context.Context) (Statistics, error) {
		return Statistics{}, errors.New("loader should not run")
	})
	require.NoError(t, err)
	require.Equal(t, 2, s.TotalItems)

	require.NoError(t, cache.Bump(ctx))
	v, err := mr.Get(statsVersionKey)
	require.NoError(t, err)
	require.Equal(t, "2", v)

	s, err = cache.Fetch(ctx, func(context.Context) (Statistics, error) {
		return Statistics{TotalItems: 3}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, s.TotalItems)
	require.True(t, mr.Exists(statsKeyPrefix+":2"))
}

func TestStatsCacheWarmKeepsVersionReadBeforeLoad(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	s, err := cache.Warm(ctx, func(ctx context.Context) (Statistics, error) {
		require.NoError(t, cache.Bump(ctx))
		return Statistics{TotalItems: 1}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, s.TotalItems)
	require.True(t, mr.Exists(statsKeyPrefix+":1"))
	require.False(t, mr.Exists(statsKeyPrefix+":2"))

	s, err = cache.Fetch(ctx, func(context.Context) (Statistics, error) {
		return Statistics{TotalItems: 2}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, s.TotalItems)
}

func TestStatsCacheFallsBackWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewStatsCache(client, time.Minute, nil)

	s, err := cache.Fetch(context.Background(), func(context.Context) (Statistics, error) {
		return Statistics{TotalItems: 9}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 9, s.TotalItems)
}
