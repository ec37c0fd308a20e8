package lease_test

import (
	"context"
	"testing"
	"time"

	"github.com/gcdeng/eth-price-prediction-dapp/internal/lease"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/testutil"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	testutil.RequireIntegration(t)
	client := redis.NewClient(&redis.Options{Addr: testutil.TestRedisAddr()})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("test redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestLease_SingleOwner(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	key := "predict:test:lease:" + uuid.NewString()

	a := lease.New(client, key, 2*time.Second, zerolog.Nop())
	b := lease.New(client, key, 2*time.Second, zerolog.Nop())

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, a.Check(ctx))

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, b.Check(ctx), lease.ErrNotHeld)

	// Only the owner can renew or release.
	assert.ErrorIs(t, b.Renew(ctx), lease.ErrNotHeld)
	require.NoError(t, b.Release(ctx))
	require.NoError(t, a.Renew(ctx))

	require.NoError(t, a.Release(ctx))
	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx))
}

func TestLease_KeepReportsLoss(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	key := "predict:test:lease:" + uuid.NewString()

	l := lease.New(client, key, 600*time.Millisecond, zerolog.Nop())
	require.NoError(t, l.Acquire(ctx, 50*time.Millisecond))

	lost := make(chan error, 1)
	go l.Keep(ctx, func(err error) { lost <- err })

	// Another process steals the key.
	require.NoError(t, client.Set(ctx, key, "intruder", time.Minute).Err())

	select {
	case err := <-lost:
		assert.ErrorIs(t, err, lease.ErrNotHeld)
	case <-ctx.Done():
		t.Fatal("lease loss not reported")
	}
	assert.False(t, l.Held())
	client.Del(ctx, key)
}
