package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spendly/internal/models"
	"spendly/internal/repositories"
	"spendly/internal/services"
)

type mockEntitlementService struct{ mock.Mock }

func (m *mockEntitlementService) Check(ctx context.Context, tenantID uuid.UUID, feature string) (bool, error) {
	args := m.Called(ctx, tenantID, feature)
	return args.Bool(0), args.Error(1)
}

type mockEventRepo struct{ mock.Mock }

func (m *mockEventRepo) WithTx(tx repositories.DB) repositories.BillingEventRepository { return m }

func (m *mockEventRepo) InsertDedup(ctx context.Context, event *models.BillingEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *mockEventRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.BillingEvent, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if events, ok := args.Get(0).([]*models.BillingEvent); ok {
		return events, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockTxnRepo struct{ mock.Mock }

func (m *mockTxnRepo) WithTx(tx repositories.DB) repositories.TransactionRepository { return m }

func (m *mockTxnRepo) InsertDedup(ctx context.Context, txn *models.Transaction) (bool, error) {
	args := m.Called(ctx, txn)
	return args.Bool(0), args.Error(1)
}

func (m *mockTxnRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.Transaction, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if txns, ok := args.Get(0).([]*models.Transaction); ok {
		return txns, args.Error(1)
	}
	return nil, args.Error(1)
}

type adminFixture struct {
	billing      *mockBillingService
	entitlements *mockEntitlementService
	events       *mockEventRepo
	txns         *mockTxnRepo
	handlers     *AdminHandlers
	echo         *echo.Echo
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		billing:      &mockBillingService{},
		entitlements: &mockEntitlementService{},
		events:       &mockEventRepo{},
		txns:         &mockTxnRepo{},
		echo:         echo.New(),
	}
	f.handlers = NewAdminHandlers(f.billing, f.entitlements, f.events, f.txns, zap.NewNop())
	return f
}

func (f *adminFixture) call(t *testing.T, handler echo.HandlerFunc, target string, paramNames, paramValues []string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, nil)
	rec := httptest.NewRecorder()
	c := f.echo.NewContext(req, rec)
	c.SetParamNames(paramNames...)
	c.SetParamValues(paramValues...)
	if err := handler(c); err != nil {
		f.echo.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestAdminCancelSubscription(t *testing.T) {
	f := newAdminFixture()
	id := uuid.New()

	f.billing.On("CancelSubscription", mock.Anything, id, models.SourceManual).Return(nil)

	rec := f.call(t, f.handlers.CancelSubscription, "/v1/admin/subscriptions/"+id.String()+"/cancel",
		[]string{"id"}, []string{id.String()})

	assert.Equal(t, http.StatusOK, rec.Code)
	f.billing.AssertExpectations(t)
}

func TestAdminCancelUnknownSubscription(t *testing.T) {
	f := newAdminFixture()
	id := uuid.New()

	f.billing.On("CancelSubscription", mock.Anything, id, models.SourceManual).
		Return(repositories.ErrNotFound)

	rec := f.call(t, f.handlers.CancelSubscription, "/cancel", []string{"id"}, []string{id.String()})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminCancelInvalidID(t *testing.T) {
	f := newAdminFixture()

	rec := f.call(t, f.handlers.CancelSubscription, "/cancel", []string{"id"}, []string{"not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.billing.AssertNotCalled(t, "CancelSubscription", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminReactivateIllegalTransitionConflicts(t *testing.T) {
	f := newAdminFixture()
	id := uuid.New()

	f.billing.On("ReactivateSubscription", mock.Anything, id, models.SourceManual).
		Return(&services.InvalidTransitionError{From: models.StatusActive, To: models.StatusActive})

	rec := f.call(t, f.handlers.ReactivateSubscription, "/reactivate", []string{"id"}, []string{id.String()})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminBillingHistory(t *testing.T) {
	f := newAdminFixture()
	tenantID := uuid.New()
	eventID := "evt_1"

	f.events.On("ListByTenant", mock.Anything, tenantID, 50, 0).
		Return([]*models.BillingEvent{{
			ID:              uuid.New(),
			Provider:        "stripe",
			ExternalEventID: &eventID,
			EventType:       models.EventChargeSucceeded,
			Source:          models.SourceWebhook,
		}}, nil)
	f.txns.On("ListByTenant", mock.Anything, tenantID, 50, 0).
		Return([]*models.Transaction{{
			ID:                    uuid.New(),
			TenantID:              tenantID,
			Status:                models.TransactionSucceeded,
			ProviderTransactionID: "in_1",
		}}, nil)

	rec := f.call(t, f.handlers.BillingHistory, "/billing-history", []string{"id"}, []string{tenantID.String()})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "evt_1")
	assert.Contains(t, rec.Body.String(), "in_1")
}

func TestAdminCheckEntitlement(t *testing.T) {
	f := newAdminFixture()
	tenantID := uuid.New()

	f.entitlements.On("Check", mock.Anything, tenantID, "invoicing").Return(true, nil)

	rec := f.call(t, f.handlers.CheckEntitlement, "/entitlements",
		[]string{"id", "feature"}, []string{tenantID.String(), "invoicing"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"allowed":true`)
}
