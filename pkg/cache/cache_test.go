package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, found, err := c.GetString(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetString(ctx, "k", "v", time.Minute))
	val, found, err := c.GetString(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", val)

	require.NoError(t, c.Del(ctx, "k"))
	_, found, err = c.GetString(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheTTLExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetString(ctx, "k", "v", time.Second))
	mr.FastForward(2 * time.Second)

	_, found, err := c.GetString(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}
