package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"spendly/internal/models"
	"spendly/internal/repositories"
)

type mockSubscriptionRepo struct{ mock.Mock }

func (m *mockSubscriptionRepo) WithTx(tx repositories.DB) repositories.SubscriptionRepository {
	return m
}

func (m *mockSubscriptionRepo) Create(ctx context.Context, sub *models.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *mockSubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, id)
	if sub, ok := args.Get(0).(*models.Subscription); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubscriptionRepo) GetByExternalID(ctx context.Context, provider, externalID string) (*models.Subscription, error) {
	args := m.Called(ctx, provider, externalID)
	if sub, ok := args.Get(0).(*models.Subscription); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubscriptionRepo) GetNonTerminalTrialForTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, tenantID)
	if sub, ok := args.Get(0).(*models.Subscription); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubscriptionRepo) GetNonTerminalForTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, tenantID)
	if sub, ok := args.Get(0).(*models.Subscription); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubscriptionRepo) Update(ctx context.Context, sub *models.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *mockSubscriptionRepo) MarkConverted(ctx context.Context, id, successorID uuid.UUID, endedAt time.Time) error {
	return m.Called(ctx, id, successorID, endedAt).Error(0)
}

func (m *mockSubscriptionRepo) FindExpiredTrials(ctx context.Context, asOf time.Time, limit int) ([]*models.Subscription, error) {
	args := m.Called(ctx, asOf, limit)
	if subs, ok := args.Get(0).([]*models.Subscription); ok {
		return subs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubscriptionRepo) FindTrialsEndingBetween(ctx context.Context, from, to time.Time, limit int) ([]*models.Subscription, error) {
	args := m.Called(ctx, from, to, limit)
	if subs, ok := args.Get(0).([]*models.Subscription); ok {
		return subs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubscriptionRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Subscription, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if subs, ok := args.Get(0).([]*models.Subscription); ok {
		return subs, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockBillingEventRepo struct{ mock.Mock }

func (m *mockBillingEventRepo) WithTx(tx repositories.DB) repositories.BillingEventRepository {
	return m
}

func (m *mockBillingEventRepo) InsertDedup(ctx context.Context, event *models.BillingEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *mockBillingEventRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.BillingEvent, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if events, ok := args.Get(0).([]*models.BillingEvent); ok {
		return events, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBillingEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockTransactionRepo struct{ mock.Mock }

func (m *mockTransactionRepo) WithTx(tx repositories.DB) repositories.TransactionRepository {
	return m
}

func (m *mockTransactionRepo) InsertDedup(ctx context.Context, txn *models.Transaction) (bool, error) {
	args := m.Called(ctx, txn)
	return args.Bool(0), args.Error(1)
}

func (m *mockTransactionRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if txns, ok := args.Get(0).([]*models.Transaction); ok {
		return txns, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockTenantRepo struct{ mock.Mock }

func (m *mockTenantRepo) WithTx(tx repositories.DB) repositories.TenantRepository {
	return m
}

func (m *mockTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	args := m.Called(ctx, id)
	if tenant, ok := args.Get(0).(*models.Tenant); ok {
		return tenant, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTenantRepo) GetByProviderCustomerID(ctx context.Context, provider, externalCustomerID string) (*models.Tenant, error) {
	args := m.Called(ctx, provider, externalCustomerID)
	if tenant, ok := args.Get(0).(*models.Tenant); ok {
		return tenant, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTenantRepo) LinkProviderCustomer(ctx context.Context, link *models.ProviderCustomer) error {
	return m.Called(ctx, link).Error(0)
}

type mockEntitlementCache struct{ mock.Mock }

func (m *mockEntitlementCache) GetDecision(ctx context.Context, tenantID uuid.UUID, feature string) (bool, bool, error) {
	args := m.Called(ctx, tenantID, feature)
	return args.Bool(0), args.Bool(1), args.Error(2)
}

func (m *mockEntitlementCache) SetDecision(ctx context.Context, tenantID uuid.UUID, feature string, allowed bool, ttl time.Duration) error {
	return m.Called(ctx, tenantID, feature, allowed, ttl).Error(0)
}

func (m *mockEntitlementCache) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	return m.Called(ctx, tenantID).Error(0)
}

func (m *mockEntitlementCache) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockNotificationService struct{ mock.Mock }

func (m *mockNotificationService) SendTrialExpiringReminder(ctx context.Context, tenantID, subscriptionID uuid.UUID, daysLeft int) error {
	return m.Called(ctx, tenantID, subscriptionID, daysLeft).Error(0)
}

func (m *mockNotificationService) SendTrialExpired(ctx context.Context, tenantID, subscriptionID uuid.UUID) error {
	return m.Called(ctx, tenantID, subscriptionID).Error(0)
}

func (m *mockNotificationService) SendPaymentFailed(ctx context.Context, tenantID, subscriptionID uuid.UUID, reason string) error {
	return m.Called(ctx, tenantID, subscriptionID, reason).Error(0)
}
