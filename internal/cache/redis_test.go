package cache

import (
	"QRLinks-Backend/internal/config"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), &config.Cache{Addr: mr.Addr()})
	require.NoError(t, err)

	c := NewRedis(client, time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedis_SetGet(t *testing.T) {
	c, mr := setupRedis(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "demo")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "demo", "https://example.com"))
	dest, ok, err := c.Get(ctx, "demo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com", dest)

	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"demo"))
}

func TestRedis_Expires(t *testing.T) {
	c, mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "demo", "https://example.com"))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "demo")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_Invalidate(t *testing.T) {
	c, _ := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "https://a.example"))
	require.NoError(t, c.Set(ctx, "b", "https://b.example"))
	require.NoError(t, c.Invalidate(ctx, "a", "b", "never-set"))
	require.NoError(t, c.Invalidate(ctx))

	for _, slug := range []string{"a", "b"} {
		_, ok, err := c.Get(ctx, slug)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestRedis_StaleSetAfterInvalidateIsDropped(t *testing.T) {
	c, mr := setupRedis(t)
	ctx := context.Background()

	// a reader misses and loads the old destination from the store
	_, ok, err := c.Get(ctx, "demo")
	require.NoError(t, err)
	require.False(t, ok)

	// meanwhile the link is updated and the cache invalidated
	require.NoError(t, c.Invalidate(ctx, "demo"))

	// the reader finishes with the value it loaded before the update
	require.NoError(t, c.Set(ctx, "demo", "https://old.example"))
	_, ok, err = c.Get(ctx, "demo")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, tombstoneTTL, mr.TTL(keyPrefix+"demo"))

	mr.FastForward(tombstoneTTL + time.Second)
	require.NoError(t, c.Set(ctx, "demo", "https://new.example"))
	dest, ok, err := c.Get(ctx, "demo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://new.example", dest)
}

func TestRedis_ServerDown(t *testing.T) {
	c, mr := setupRedis(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "demo")
	assert.Error(t, err)
	assert.Error(t, c.Ping(context.Background()))
}

func TestNewClient_Unreachable(t *testing.T) {
	_, err := NewClient(context.Background(), &config.Cache{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
