package caching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EntitlementCache stores feature-gate decisions keyed by tenant and
// feature. It is a derived view over the subscription row, never a source
// of truth: a miss falls back to recomputation and invalidation is safe to
// call redundantly.
type EntitlementCache interface {
	GetDecision(ctx context.Context, tenantID uuid.UUID, feature string) (allowed bool, found bool, err error)
	SetDecision(ctx context.Context, tenantID uuid.UUID, feature string, allowed bool, ttl time.Duration) error
	// InvalidateTenant evicts every cached decision for the tenant.
	InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error
	Ping(ctx context.Context) error
}

type redisEntitlementCache struct {
	client *redis.Client
}

func NewRedisEntitlementCache(addr, password string, db int) EntitlementCache {
	// Accept redis://host:port URLs as well as bare host:port.
	parsedAddr := strings.TrimPrefix(strings.TrimPrefix(addr, "rediss://"), "redis://")

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})
	return &redisEntitlementCache{client: client}
}

func decisionKey(tenantID uuid.UUID, feature string) string {
	return fmt.Sprintf("spendly:entitlement:%s:%s", tenantID.String(), feature)
}

func (r *redisEntitlementCache) GetDecision(ctx context.Context, tenantID uuid.UUID, feature string) (bool, bool, error) {
	val, err := r.client.Get(ctx, decisionKey(tenantID, feature)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, false, nil // cache miss
		}
		return false, false, err
	}
	return val == "1", true, nil
}

func (r *redisEntitlementCache) SetDecision(ctx context.Context, tenantID uuid.UUID, feature string, allowed bool, ttl time.Duration) error {
	val := "0"
	if allowed {
		val = "1"
	}
	return r.client.Set(ctx, decisionKey(tenantID, feature), val, ttl).Err()
}

func (r *redisEntitlementCache) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	pattern := fmt.Sprintf("spendly:entitlement:%s:*", tenantID.String())
	keys, err := r.client.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

func (r *redisEntitlementCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
