package caching

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, EntitlementCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, NewRedisEntitlementCache(mr.Addr(), "", 0)
}

func TestDecisionRoundTrip(t *testing.T) {
	_, cache := newTestCache(t)
	ctx := context.Background()
	tenantID := uuid.New()

	_, found, err := cache.GetDecision(ctx, tenantID, "invoicing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.SetDecision(ctx, tenantID, "invoicing", true, time.Minute))
	require.NoError(t, cache.SetDecision(ctx, tenantID, "api_access", false, time.Minute))

	allowed, found, err := cache.GetDecision(ctx, tenantID, "invoicing")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, allowed)

	allowed, found, err = cache.GetDecision(ctx, tenantID, "api_access")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, allowed)
}

func TestInvalidateTenantEvictsOnlyThatTenant(t *testing.T) {
	_, cache := newTestCache(t)
	ctx := context.Background()
	tenantA := uuid.New()
	tenantB := uuid.New()

	require.NoError(t, cache.SetDecision(ctx, tenantA, "invoicing", true, time.Minute))
	require.NoError(t, cache.SetDecision(ctx, tenantA, "api_access", true, time.Minute))
	require.NoError(t, cache.SetDecision(ctx, tenantB, "invoicing", true, time.Minute))

	require.NoError(t, cache.InvalidateTenant(ctx, tenantA))

	_, found, err := cache.GetDecision(ctx, tenantA, "invoicing")
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = cache.GetDecision(ctx, tenantA, "api_access")
	require.NoError(t, err)
	assert.False(t, found)

	allowed, found, err := cache.GetDecision(ctx, tenantB, "invoicing")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, allowed)
}

func TestInvalidateTenantWithNoKeysIsNoOp(t *testing.T) {
	_, cache := newTestCache(t)
	assert.NoError(t, cache.InvalidateTenant(context.Background(), uuid.New()))
}

func TestDecisionExpires(t *testing.T) {
	mr, cache := newTestCache(t)
	ctx := context.Background()
	tenantID := uuid.New()

	require.NoError(t, cache.SetDecision(ctx, tenantID, "invoicing", true, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, found, err := cache.GetDecision(ctx, tenantID, "invoicing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisURLPrefixAccepted(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := NewRedisEntitlementCache("redis://"+mr.Addr(), "", 0)
	assert.NoError(t, cache.Ping(context.Background()))
}
