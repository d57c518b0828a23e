package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) *FixedWindowLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l, err := NewFixedWindowLimiter(client, "test:ratelimit", limit, window)
	require.NoError(t, err)
	return l
}

func TestAllowWithinLimit(t *testing.T) {
	l := newTestLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "request %d should pass", i+1)
	}
	assert.False(t, l.Allow("1.2.3.4"), "fourth request exceeds the limit")
}

func TestKeysAreIndependent(t *testing.T) {
	l := newTestLimiter(t, 1, time.Minute)

	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"))
}

func TestEmptyKeyFallsBackToSharedBucket(t *testing.T) {
	l := newTestLimiter(t, 1, time.Minute)

	assert.True(t, l.Allow(""))
	assert.False(t, l.Allow("   "))
}

func TestFailsClosedWhenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l, err := NewFixedWindowLimiter(client, "test:ratelimit", 10, time.Minute)
	require.NoError(t, err)

	mr.Close()
	assert.False(t, l.Allow("1.2.3.4"))
}

func TestNewRejectsInvalidArguments(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewFixedWindowLimiter(client, "p", 0, time.Minute)
	assert.Error(t, err)
	_, err = NewFixedWindowLimiter(client, "p", 5, 0)
	assert.Error(t, err)
	_, err = NewFixedWindowLimiter(nil, "p", 5, time.Minute)
	assert.Error(t, err)
}
