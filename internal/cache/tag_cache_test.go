package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTagCache(t *testing.T) *TagCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTagCache(client, time.Minute)
}

type payload struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

func TestTagCacheSetAndGet(t *testing.T) {
	tc := newTestTagCache(t)
	ctx := context.Background()
	tag := UserChat("c1")

	require.NoError(t, tc.Set(ctx, tag, payload{Title: "hello", Count: 3}))

	var got payload
	hit, err := tc.Get(ctx, tag, &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload{Title: "hello", Count: 3}, got)
}

func TestTagCacheGetMiss(t *testing.T) {
	tc := newTestTagCache(t)

	var got payload
	hit, err := tc.Get(context.Background(), UserChat("missing"), &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestTagCacheInvalidateRemovesExactTags(t *testing.T) {
	tc := newTestTagCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, UserChats("u1"), payload{Count: 1}))
	require.NoError(t, tc.Set(ctx, UserSharedChats("u1"), payload{Count: 2}))

	require.NoError(t, tc.Invalidate(ctx, UserChats("u1")))

	var got payload
	hit, err := tc.Get(ctx, UserChats("u1"), &got)
	require.NoError(t, err)
	assert.False(t, hit)

	hit, err = tc.Get(ctx, UserSharedChats("u1"), &got)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestInvalidateScopeDropsAllQueryHashes(t *testing.T) {
	tc := newTestTagCache(t)
	ctx := context.Background()

	require.NoError(t, tc.Set(ctx, UserChatsSearch("u1", "alpha"), payload{Count: 1}))
	require.NoError(t, tc.Set(ctx, UserChatsSearch("u1", "beta"), payload{Count: 2}))
	require.NoError(t, tc.Set(ctx, UserChatsSearch("u2", "alpha"), payload{Count: 3}))

	require.NoError(t, tc.InvalidateScope(ctx, "user-chats-search", "u1"))

	var got payload
	for _, q := range []string{"alpha", "beta"} {
		hit, err := tc.Get(ctx, UserChatsSearch("u1", q), &got)
		require.NoError(t, err)
		assert.False(t, hit, "u1 search %q should be gone", q)
	}

	hit, err := tc.Get(ctx, UserChatsSearch("u2", "alpha"), &got)
	require.NoError(t, err)
	assert.True(t, hit, "other user's search pages untouched")
}
