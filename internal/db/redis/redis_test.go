package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	keys map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ interface{}, ttl time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Ping(_ context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

func TestReturnStore_MarkOnce(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	store := NewReturnStore(fake)

	first, err := store.MarkConsumed(ctx, "cs_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.MarkConsumed(ctx, "cs_1", time.Hour)
	require.NoError(t, err)
	assert.False(t, second)

	assert.Equal(t, time.Hour, fake.keys[keyPrefix+"cs_1"])

	consumed, err := store.IsConsumed(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, consumed)

	consumed, err = store.IsConsumed(ctx, "cs_2")
	require.NoError(t, err)
	assert.False(t, consumed)
}

func TestReturnStore_Errors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	store := NewReturnStore(fake)

	_, err := store.MarkConsumed(ctx, "cs_1", time.Hour)
	assert.ErrorIs(t, err, fake.err)

	_, err = store.IsConsumed(ctx, "cs_1")
	assert.ErrorIs(t, err, fake.err)

	assert.Error(t, store.Ping(ctx))
}
