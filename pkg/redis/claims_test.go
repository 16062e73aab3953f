package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/redis"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestClaims(t *testing.T) {
	t.Parallel()

	t.Run("first claim wins", func(t *testing.T) {
		t.Parallel()
		_, client := newClient(t)
		claims := redis.NewClaims(client, "test:", time.Hour)
		ctx := context.Background()

		ok, err := claims.Claim(ctx, "evt_1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = claims.Claim(ctx, "evt_1")
		require.NoError(t, err)
		assert.False(t, ok)

		held, err := claims.Claimed(ctx, "evt_1")
		require.NoError(t, err)
		assert.True(t, held)
	})

	t.Run("release allows a new claim", func(t *testing.T) {
		t.Parallel()
		_, client := newClient(t)
		claims := redis.NewClaims(client, "test:", time.Hour)
		ctx := context.Background()

		ok, err := claims.Claim(ctx, "evt_2")
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, claims.Release(ctx, "evt_2"))

		ok, err = claims.Claim(ctx, "evt_2")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("claim expires after ttl", func(t *testing.T) {
		t.Parallel()
		mr, client := newClient(t)
		claims := redis.NewClaims(client, "test:", time.Minute)
		ctx := context.Background()

		ok, err := claims.Claim(ctx, "evt_3")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, mr.Exists("test:evt_3"))

		mr.FastForward(2 * time.Minute)

		ok, err = claims.Claim(ctx, "evt_3")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("uncommitted lease lapses", func(t *testing.T) {
		t.Parallel()
		mr, client := newClient(t)
		claims := redis.NewClaims(client, "test:", time.Hour, redis.WithLease(time.Minute))
		ctx := context.Background()

		ok, err := claims.Claim(ctx, "evt_5")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, time.Minute, mr.TTL("test:evt_5"))

		mr.FastForward(2 * time.Minute)

		ok, err = claims.Claim(ctx, "evt_5")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("commit holds for ttl", func(t *testing.T) {
		t.Parallel()
		mr, client := newClient(t)
		claims := redis.NewClaims(client, "test:", time.Hour, redis.WithLease(time.Minute))
		ctx := context.Background()

		ok, err := claims.Claim(ctx, "evt_6")
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, claims.Commit(ctx, "evt_6"))
		assert.Equal(t, time.Hour, mr.TTL("test:evt_6"))

		mr.FastForward(2 * time.Minute)

		ok, err = claims.Claim(ctx, "evt_6")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("lease is capped at ttl", func(t *testing.T) {
		t.Parallel()
		mr, client := newClient(t)
		claims := redis.NewClaims(client, "test:", time.Minute, redis.WithLease(time.Hour))

		ok, err := claims.Claim(context.Background(), "evt_7")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, time.Minute, mr.TTL("test:evt_7"))
	})

	t.Run("empty key", func(t *testing.T) {
		t.Parallel()
		_, client := newClient(t)
		claims := redis.NewClaims(client, "test:", time.Minute)

		_, err := claims.Claim(context.Background(), "")
		assert.ErrorIs(t, err, redis.ErrEmptyKey)
		assert.ErrorIs(t, claims.Commit(context.Background(), ""), redis.ErrEmptyKey)
	})

	t.Run("server down", func(t *testing.T) {
		t.Parallel()
		mr, client := newClient(t)
		claims := redis.NewClaims(client, "test:", time.Minute)
		mr.Close()

		_, err := claims.Claim(context.Background(), "evt_4")
		assert.ErrorIs(t, err, redis.ErrClaimFailed)
	})
}

func TestNewClaims_Panics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { redis.NewClaims(nil, "x", time.Minute) })
	_, client := newClient(t)
	assert.Panics(t, func() { redis.NewClaims(client, "x", 0) })
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	mr, client := newClient(t)
	check := redis.Healthcheck(client)
	require.NoError(t, check(context.Background()))

	mr.Close()
	assert.ErrorIs(t, check(context.Background()), redis.ErrHealthcheckFailed)
}

func TestConnect(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		mr := miniredis.RunT(t)
		client, err := redis.Connect(context.Background(), redis.Config{
			ConnectionURL:  "redis://" + mr.Addr() + "/0",
			RetryAttempts:  1,
			ConnectTimeout: time.Second,
		})
		require.NoError(t, err)
		_ = client.Close()
	})

	t.Run("bad url", func(t *testing.T) {
		t.Parallel()
		_, err := redis.Connect(context.Background(), redis.Config{
			ConnectionURL:  "://nope",
			ConnectTimeout: time.Second,
		})
		assert.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)
	})

	t.Run("empty url", func(t *testing.T) {
		t.Parallel()
		_, err := redis.Connect(context.Background(), redis.Config{})
		assert.ErrorIs(t, err, redis.ErrEmptyConnectionURL)
	})
}
