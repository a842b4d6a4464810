package dedupe_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dedupe "github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/dedupe"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisDeduper(t *testing.T) {
	mr, client := setupTestRedis(t)
	d := dedupe.NewRedisDeduper(client, dedupe.WithKeyPrefix("test:"), dedupe.WithRedisTTL(time.Minute))
	ctx := context.Background()

	t.Run("first claim owns the key", func(t *testing.T) {
		claim, err := d.SeenAndRecord(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, claim.Seen)
		assert.True(t, mr.Exists("test:k1"))
	})

	t.Run("second claim is in flight", func(t *testing.T) {
		claim, err := d.SeenAndRecord(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, claim.Seen)
		assert.True(t, claim.InFlight)
	})

	t.Run("completed key replays its response", func(t *testing.T) {
		require.NoError(t, d.Complete(ctx, "k1", dedupe.Result{Status: 201, Body: json.RawMessage(`{"ok":true}`)}))
		claim, err := d.SeenAndRecord(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, claim.Seen)
		assert.False(t, claim.InFlight)
		assert.Equal(t, 201, claim.Result.Status)
		assert.JSONEq(t, `{"ok":true}`, string(claim.Result.Body))
	})

	t.Run("keys expire", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		claim, err := d.SeenAndRecord(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, claim.Seen)
	})

	t.Run("unrecord releases the key", func(t *testing.T) {
		d.Unrecord(ctx, "k1")
		assert.False(t, mr.Exists("test:k1"))
	})

	t.Run("fails open when redis is down", func(t *testing.T) {
		down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
		defer down.Close()
		claim, err := dedupe.NewRedisDeduper(down).SeenAndRecord(ctx, "k2")
		require.NoError(t, err)
		assert.False(t, claim.Seen)
	})
}
