package settings

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmhawkins/comurban-sub001/pkg/cache"
)

// Cache hits short-circuit before the database, so seeding redis directly
// lets the read path be exercised without a live postgres.
func newCachedService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.New("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return NewService(nil, c, time.Minute), mr
}

func TestGetServedFromCache(t *testing.T) {
	svc, mr := newCachedService(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(cachePrefix+KeyAutoReplyGreeting, "Gracias por su mensaje"))
	assert.Equal(t, "Gracias por su mensaje", svc.Get(ctx, KeyAutoReplyGreeting, "fallback"))
}

func TestGetBool(t *testing.T) {
	svc, mr := newCachedService(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(cachePrefix+KeyAutoReplyEnabled, "true"))
	assert.True(t, svc.GetBool(ctx, KeyAutoReplyEnabled, false))

	require.NoError(t, mr.Set(cachePrefix+KeyAutoReplyEnabled, "not-a-bool"))
	assert.True(t, svc.GetBool(ctx, KeyAutoReplyEnabled, true), "junk falls back")
}

func TestGetInt(t *testing.T) {
	svc, mr := newCachedService(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(cachePrefix+KeyIncidentSweepMins, "15"))
	assert.Equal(t, 15, svc.GetInt(ctx, KeyIncidentSweepMins, 5))

	require.NoError(t, mr.Set(cachePrefix+KeyIncidentSweepMins, "soon"))
	assert.Equal(t, 5, svc.GetInt(ctx, KeyIncidentSweepMins, 5), "junk falls back")
}
