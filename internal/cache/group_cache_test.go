package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *GroupCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewGroupCache(client, time.Minute)
}

func TestGroupCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	_, ok, err := c.Get(ctx, "assessor", "Apiary", []string{"Kimberley"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "assessor", "Apiary", []string{"Pilbara", "Kimberley"}, 7))

	id, ok, err := c.Get(ctx, "assessor", "Apiary", []string{"Kimberley", "Pilbara"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(7), id)

	_, ok, err = c.Get(ctx, "approver", "Apiary", []string{"Kimberley", "Pilbara"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGroupCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Set(ctx, "assessor", "Apiary", []string{"Kimberley"}, 3))
	require.NoError(t, c.Invalidate(ctx))

	_, ok, err := c.Get(ctx, "assessor", "Apiary", []string{"Kimberley"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNilGroupCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c *GroupCache

	require.NoError(t, c.Set(ctx, "assessor", "Apiary", nil, 1))
	_, ok, err := c.Get(ctx, "assessor", "Apiary", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(ctx))
	assert.Nil(t, NewGroupCache(nil, time.Minute))
}
