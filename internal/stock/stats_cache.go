package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	statsVersionKey = "stock:stats:version"
	statsKeyPrefix  = "stock:stats"
)

// StatsCache keeps collection statistics in Redis under a version that is
// bumped on every write, so stale aggregates are never served after a change.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewStatsCache builds the cache. A nil client disables caching.
func NewStatsCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *StatsCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsCache{client: client, ttl: ttl, logger: logger}
}

func (c *StatsCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, statsVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so concurrent initialisers agree on the first version.
		if err := c.client.SetNX(ctx, statsVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, statsVersionKey).Int64()
	}
	return ver, err
}

func (c *StatsCache) key(ctx context.Context) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", statsKeyPrefix, ver), nil
}

// Fetch returns cached statistics or computes them with loader. Concurrent
// misses share one loader call. Redis failures fall back to loader.
func (c *StatsCache) Fetch(ctx context.Context, loader func(context.Context) (Statistics, error)) (Statistics, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.key(ctx)
	if err != nil {
		c.logger.Warn("stats cache unavailable", slog.Any("error", err))
		return loader(ctx)
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var s Statistics
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("stats cache read failed", slog.Any("error", err))
		return loader(ctx)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		s, err := loader(ctx)
		if err != nil {
			return Statistics{}, err
		}
		c.set(ctx, key, s)
		return s, nil
	})
	if err != nil {
		return Statistics{}, err
	}
	return v.(Statistics), nil
}

// Store writes s under the current version.
func (c *StatsCache) Store(ctx context.Context, s Statistics) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.key(ctx)
	if err != nil {
		return err
	}
	return c.store(ctx, key, s)
}

// Warm recomputes statistics with loader and caches them under the version
// read before loader ran. A write that bumps the version meanwhile leaves the
// result under the retired key, where it is never read.
func (c *StatsCache) Warm(ctx context.Context, loader func(context.Context) (Statistics, error)) (Statistics, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.key(ctx)
	if err != nil {
		return Statistics{}, err
	}
	s, err := loader(ctx)
	if err != nil {
		return Statistics{}, err
	}
	return s, c.store(ctx, key, s)
}

func (c *StatsCache) store(ctx context.Context, key string, s Statistics) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates cached statistics.
func (c *StatsCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, statsVersionKey).Err()
}

func (c *StatsCache) set(ctx context.Context, key string, s Statistics) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("stats cache write failed", slog.Any("error", err))
	}
}
