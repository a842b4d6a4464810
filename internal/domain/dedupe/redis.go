package dedupe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/logger"
	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/metrics"
)

const pendingMarker = "pending"

// RedisDeduper shares idempotency keys across instances through Redis. When
// Redis is unreachable it fails open: the request proceeds as if the key were
// new and the failure is counted.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger logger.Logger
}

var _ Deduper = (*RedisDeduper)(nil)

// RedisOption configures a RedisDeduper.
type RedisOption func(*RedisDeduper)

// WithKeyPrefix namespaces keys in Redis.
func WithKeyPrefix(prefix string) RedisOption {
	return func(d *RedisDeduper) { d.prefix = prefix }
}

// WithRedisTTL sets how long keys live in Redis.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(d *RedisDeduper) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// DialRedis parses url and verifies the server answers.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisDeduper wraps client.
func NewRedisDeduper(client *redis.Client, opts ...RedisOption) *RedisDeduper {
	d := &RedisDeduper{
		client: client,
		prefix: "intake:idem:",
		ttl:    24 * time.Hour,
		logger: logger.Get().Named("dedupe"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *RedisDeduper) SeenAndRecord(ctx context.Context, key string) (Claim, error) {
	k := d.prefix + key
	claimed, err := d.client.SetNX(ctx, k, pendingMarker, d.ttl).Result()
	if err != nil {
		d.failOpen(ctx, "claim", err)
		return Claim{}, nil
	}
	if claimed {
		return Claim{}, nil
	}

	val, err := d.client.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET; the key is free again.
		return Claim{}, nil
	case err != nil:
		d.failOpen(ctx, "read", err)
		return Claim{}, nil
	case val == pendingMarker:
		return Claim{Seen: true, InFlight: true}, nil
	}
	var res Result
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		return Claim{}, fmt.Errorf("decode stored response for %q: %w", key, err)
	}
	return Claim{Seen: true, Result: res}, nil
}

// Complete implements Deduper.
func (d *RedisDeduper) Complete(ctx context.Context, key string, res Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := d.client.Set(ctx, d.prefix+key, b, d.ttl).Err(); err != nil {
		metrics.RecordIdempotencyError()
		return fmt.Errorf("store response for %q: %w", key, err)
	}
	return nil
}

// Unrecord implements Deduper.
func (d *RedisDeduper) Unrecord(ctx context.Context, key string) {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		d.failOpen(ctx, "release", err)
	}
}

func (d *RedisDeduper) failOpen(ctx context.Context, op string, err error) {
	metrics.RecordIdempotencyError()
	d.logger.Warn(ctx, "idempotency store unavailable, continuing without it",
		logger.String("op", op), logger.Error(err))
}
