// Package cache keeps computed reports in Redis under a per-tenant version key.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "depot:reports"

// Reports caches JSON report payloads. A nil *Reports is a valid, disabled cache.
type Reports struct {
	client *redis.Client
	ttl    time.Duration
}

// Default is installed by the server when REDIS_ADDR is set.
var Default *Reports

func New(client *redis.Client, ttl time.Duration) *Reports {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Reports{client: client, ttl: ttl}
}

// Connect dials Redis and checks it answers.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping %s: %w", addr, err)
	}
	return client, nil
}

func versionKey(tenantID uint) string {
	return fmt.Sprintf("%s:%d:version", keyPrefix, tenantID)
}

func (r *Reports) version(ctx context.Context, tenantID uint) (int64, error) {
	v, err := r.client.Get(ctx, versionKey(tenantID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (r *Reports) key(ctx context.Context, tenantID uint, parts []string) (string, error) {
	v, err := r.version(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d:v%d:%s", keyPrefix, tenantID, v, strings.Join(parts, ":")), nil
}

// Fetch returns the cached value for parts, or computes it with load and stores it.
// Redis failures are logged and fall through to load.
func Fetch[T any](ctx context.Context, r *Reports, tenantID uint, parts []string, load func() (T, error)) (T, error) {
	if r == nil || r.client == nil {
		return load()
	}

	key, err := r.key(ctx, tenantID, parts)
	if err != nil {
		zap.L().Warn("report cache unavailable", zap.Error(err))
		return load()
	}

	if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var out T
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		zap.L().Warn("report cache read failed", zap.String("key", key), zap.Error(err))
	}

	out, err := load()
	if err != nil {
		return out, err
	}
	raw, err := json.Marshal(out)
	if err == nil {
		err = r.client.Set(ctx, key, raw, r.ttl).Err()
	}
	if err != nil {
		zap.L().Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
	return out, nil
}

// Invalidate makes every cached report of the tenant stale. Old keys expire by TTL.
func (r *Reports) Invalidate(ctx context.Context, tenantID uint) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Incr(ctx, versionKey(tenantID)).Err()
}

// Invalidate bumps the tenant version on Default and only logs failures.
func Invalidate(tenantID uint) {
	if Default == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Default.Invalidate(ctx, tenantID); err != nil {
		zap.L().Warn("report cache invalidation failed", zap.Uint("tenant_id", tenantID), zap.Error(err))
	}
}
