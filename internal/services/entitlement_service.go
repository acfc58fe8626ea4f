package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spendly/internal/caching"
	"spendly/internal/models"
	"spendly/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// entitlementTTL bounds staleness if an invalidation is ever missed; the
// state machine invalidates synchronously on every status change, so the
// TTL is a backstop, not the coherence mechanism.
const entitlementTTL = 15 * time.Minute

// EntitlementService answers feature-gate queries for the rest of the
// application. The redis cache is a derived view; the subscription row is
// authoritative on every miss.
type EntitlementService interface {
	Check(ctx context.Context, tenantID uuid.UUID, feature string) (bool, error)
}

type entitlementService struct {
	subscriptions repositories.SubscriptionRepository
	tenants       repositories.TenantRepository
	cache         caching.EntitlementCache
	logger        *zap.Logger
}

func NewEntitlementService(
	subscriptionRepo repositories.SubscriptionRepository,
	tenantRepo repositories.TenantRepository,
	cache caching.EntitlementCache,
	logger *zap.Logger,
) EntitlementService {
	return &entitlementService{
		subscriptions: subscriptionRepo,
		tenants:       tenantRepo,
		cache:         cache,
		logger:        logger,
	}
}

func (s *entitlementService) Check(ctx context.Context, tenantID uuid.UUID, feature string) (bool, error) {
	allowed, found, err := s.cache.GetDecision(ctx, tenantID, feature)
	if err != nil {
		// A broken cache degrades to authoritative reads, not to denial.
		s.logger.Warn("entitlement cache read failed", zap.Error(err))
	} else if found {
		return allowed, nil
	}

	allowed, err = s.compute(ctx, tenantID, feature)
	if err != nil {
		return false, err
	}
	if err := s.cache.SetDecision(ctx, tenantID, feature, allowed, entitlementTTL); err != nil {
		s.logger.Warn("entitlement cache write failed", zap.Error(err))
	}
	return allowed, nil
}

// compute derives the decision from the tenant's current subscription.
// trialing and active grant the plan's features; past_due keeps them during
// dunning; everything else falls back to the free tier.
func (s *entitlementService) compute(ctx context.Context, tenantID uuid.UUID, feature string) (bool, error) {
	sub, err := s.subscriptions.GetNonTerminalForTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return planHasFeature("free", feature), nil
		}
		return false, fmt.Errorf("load subscription for tenant %s: %w", tenantID, err)
	}

	switch sub.Status {
	case models.StatusTrialing, models.StatusActive, models.StatusPastDue:
		return planHasFeature(sub.PlanID, feature), nil
	default: // paused
		return planHasFeature("free", feature), nil
	}
}
