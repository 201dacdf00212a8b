package querycache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := NewMemoryCache(0)
	ctx := context.Background()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v1")))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_CopiesValue(t *testing.T) {
	c := NewMemoryCache(0)
	buf := []byte("abc")
	require.NoError(t, c.Set(context.Background(), "k", buf))
	buf[0] = 'X'

	got, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryCache_TTL(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "k", []byte("v")))

	now = now.Add(59 * time.Second)
	_, err := c.Get(context.Background(), "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, c.Len())
}

func TestKey_StableAndScoped(t *testing.T) {
	a := Key("u1", "GetCart", map[string]any{"restaurantId": "r1", "x": 1})
	b := Key("u1", "GetCart", map[string]any{"x": 1, "restaurantId": "r1"})
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Key("u2", "GetCart", map[string]any{"restaurantId": "r1", "x": 1}))
	assert.NotEqual(t, a, Key("u1", "GetCart", map[string]any{"restaurantId": "r2", "x": 1}))
	assert.Contains(t, a, "gql:u1:GetCart:")
}

func TestMemoryCache_CleanupSweepsExpired(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "old", []byte("v")))
	now = now.Add(2 * time.Minute)
	require.NoError(t, c.Set(context.Background(), "fresh", []byte("v")))

	c.expire()
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_StartCleanupAndClose(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	require.NoError(t, c.Set(context.Background(), "k", []byte("v")))

	c.StartCleanup(5 * time.Millisecond)
	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	c.Close()
	c.Close()
}
