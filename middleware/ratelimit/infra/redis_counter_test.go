package infra_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"ratelimit-gateway/middleware/ratelimit/application"
	"ratelimit-gateway/middleware/ratelimit/domain"
	"ratelimit-gateway/middleware/ratelimit/infra"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:        s.Addr(),
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

func TestRedisCounterStore_IncrementIsSequential(t *testing.T) {
	_, client := newMiniredis(t)
	store := infra.NewRedisCounterStore(client)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Increment(ctx, "rate:user:alice")
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestRedisCounterStore_ExpireIfNewDoesNotOverride(t *testing.T) {
	s, client := newMiniredis(t)
	store := infra.NewRedisCounterStore(client)
	ctx := context.Background()

	_, err := store.Increment(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, store.ExpireIfNew(ctx, "k", 60*time.Second))

	s.FastForward(10 * time.Second)
	require.NoError(t, store.ExpireIfNew(ctx, "k", 60*time.Second))

	ttl, err := store.TTL(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 50*time.Second, ttl)
}

func TestRedisCounterStore_ExpireIfNewOnMissingKeyIsNoop(t *testing.T) {
	s, client := newMiniredis(t)
	store := infra.NewRedisCounterStore(client)

	require.NoError(t, store.ExpireIfNew(context.Background(), "gone", time.Minute))
	require.False(t, s.Exists("gone"))
}

func TestRedisCounterStore_ExpireIfNewUsesMilliseconds(t *testing.T) {
	s, client := newMiniredis(t)
	store := infra.NewRedisCounterStore(client)
	ctx := context.Background()

	_, err := store.Increment(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, store.ExpireIfNew(ctx, "k", 1500*time.Millisecond))

	ttl, err := store.TTL(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 1500*time.Millisecond, ttl)

	s.FastForward(1500 * time.Millisecond)
	n, err := store.Increment(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestRedisCounterStore_ExpireIfNewSetsMissingTTL(t *testing.T) {
	s, client := newMiniredis(t)
	store := infra.NewRedisCounterStore(client)

	// contador sem TTL recebe o TTL; é o caso de count == 1 logo após o INCR
	require.NoError(t, s.Set("orphan", "1"))
	require.NoError(t, store.ExpireIfNew(context.Background(), "orphan", time.Minute))
	require.Equal(t, time.Minute, s.TTL("orphan"))
}

func TestRedisCounterStore_TTLWithoutExpiryIsNegative(t *testing.T) {
	s, client := newMiniredis(t)
	store := infra.NewRedisCounterStore(client)
	ctx := context.Background()

	require.NoError(t, s.Set("orphan", "4"))
	ttl, err := store.TTL(ctx, "orphan")
	require.NoError(t, err)
	require.Less(t, ttl, time.Duration(0))

	ttl, err = store.TTL(ctx, "missing")
	require.NoError(t, err)
	require.Less(t, ttl, time.Duration(0))
}

func TestRedisCounterStore_ClosedServerReturnsError(t *testing.T) {
	s, client := newMiniredis(t)
	store := infra.NewRedisCounterStore(client)
	s.Close()

	_, err := store.Increment(context.Background(), "k")
	require.Error(t, err)
}

func TestRedisCounterStore_WithService(t *testing.T) {
	s, client := newMiniredis(t)
	svc, err := application.NewService(infra.NewRedisCounterStore(client), application.Config{
		Limit:  3,
		Window: 60 * time.Second,
	})
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()

	for i, remaining := range []int64{2, 1, 0} {
		dec, err := svc.Decide(ctx, "alice", now)
		require.NoError(t, err)
		require.True(t, dec.Allowed, "request %d", i+1)
		require.Equal(t, remaining, dec.Remaining)
	}

	s.FastForward(5 * time.Second)
	dec, err := svc.Decide(ctx, "alice", now)
	require.NoError(t, err)
	require.False(t, dec.Allowed)
	require.Equal(t, 55*time.Second, dec.RetryAfter)
	require.Equal(t, 60*time.Second, s.TTL("rate:user:alice")+5*time.Second)

	s.FastForward(61 * time.Second)
	dec, err = svc.Decide(ctx, "alice", now)
	require.NoError(t, err)
	require.True(t, dec.Allowed)
	require.Equal(t, int64(1), dec.Count)
	require.Equal(t, int64(2), dec.Remaining)

	s.Close()
	_, err = svc.Decide(ctx, "alice", now)
	require.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}
