package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"spendly/internal/models"
	"spendly/internal/providers"
	"spendly/internal/services"
)

type mockBillingService struct{ mock.Mock }

func (m *mockBillingService) ProcessEvent(ctx context.Context, event *providers.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockBillingService) ExpireTrial(ctx context.Context, subscriptionID uuid.UUID) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func (m *mockBillingService) CancelSubscription(ctx context.Context, subscriptionID uuid.UUID, source models.EventSource) error {
	return m.Called(ctx, subscriptionID, source).Error(0)
}

func (m *mockBillingService) ReactivateSubscription(ctx context.Context, subscriptionID uuid.UUID, source models.EventSource) error {
	return m.Called(ctx, subscriptionID, source).Error(0)
}

const webhookSecret = "whsec_test"

type WebhookHandlersSuite struct {
	suite.Suite
	billing  *mockBillingService
	handlers *WebhookHandlers
	echo     *echo.Echo
}

func (s *WebhookHandlersSuite) SetupTest() {
	s.billing = &mockBillingService{}
	registry := providers.NewRegistry(
		providers.NewStripeAdapter(webhookSecret),
		providers.NewPaypalAdapter(webhookSecret),
		providers.NewPaddleAdapter(webhookSecret),
	)
	s.handlers = NewWebhookHandlers(registry, s.billing, zap.NewNop())
	s.echo = echo.New()
}

func signStripe(body string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func (s *WebhookHandlersSuite) postStripe(body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	err := s.handlers.StripeWebhook(c)
	if err != nil {
		s.echo.HTTPErrorHandler(err, c)
	}
	return rec
}

const stripeUpdateBody = `{
	"id": "evt_1",
	"type": "customer.subscription.updated",
	"created": 1767225600,
	"data": {"object": {"id": "sub_1", "customer": "cus_1", "status": "active"}}
}`

func (s *WebhookHandlersSuite) TestValidEventProcessed() {
	s.billing.On("ProcessEvent", mock.Anything, mock.MatchedBy(func(ev *providers.Event) bool {
		return ev.Kind == providers.KindSubscriptionUpdated && ev.ExternalEventID == "evt_1"
	})).Return(nil)

	rec := s.postStripe(stripeUpdateBody, signStripe(stripeUpdateBody))

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "processed")
	s.billing.AssertExpectations(s.T())
}

func (s *WebhookHandlersSuite) TestMissingSignatureHeader() {
	rec := s.postStripe(stripeUpdateBody, "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.billing.AssertNotCalled(s.T(), "ProcessEvent", mock.Anything, mock.Anything)
}

func (s *WebhookHandlersSuite) TestInvalidSignatureRejected() {
	ts := time.Now().Unix()
	rec := s.postStripe(stripeUpdateBody, fmt.Sprintf("t=%d,v1=deadbeef", ts))
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.billing.AssertNotCalled(s.T(), "ProcessEvent", mock.Anything, mock.Anything)
}

func (s *WebhookHandlersSuite) TestTamperedBodyRejected() {
	tampered := strings.Replace(stripeUpdateBody, "sub_1", "sub_2", 1)
	rec := s.postStripe(tampered, signStripe(stripeUpdateBody))
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *WebhookHandlersSuite) TestUnsupportedEventAcknowledged() {
	body := `{"id": "evt_2", "type": "customer.created", "created": 1767225600, "data": {"object": {}}}`
	rec := s.postStripe(body, signStripe(body))

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "ignored")
	s.billing.AssertNotCalled(s.T(), "ProcessEvent", mock.Anything, mock.Anything)
}

func (s *WebhookHandlersSuite) TestMalformedPayloadRejected() {
	body := `{"broken`
	rec := s.postStripe(body, signStripe(body))
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *WebhookHandlersSuite) TestDuplicateDeliveryAcknowledged() {
	s.billing.On("ProcessEvent", mock.Anything, mock.Anything).Return(services.ErrDuplicateEvent)

	rec := s.postStripe(stripeUpdateBody, signStripe(stripeUpdateBody))

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "duplicate")
}

func (s *WebhookHandlersSuite) TestUnresolvedTenantAcknowledged() {
	s.billing.On("ProcessEvent", mock.Anything, mock.Anything).Return(services.ErrUnresolvedTenant)

	rec := s.postStripe(stripeUpdateBody, signStripe(stripeUpdateBody))

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "unlinked")
}

func (s *WebhookHandlersSuite) TestIllegalTransitionAcknowledged() {
	s.billing.On("ProcessEvent", mock.Anything, mock.Anything).Return(&services.InvalidTransitionError{
		From: models.StatusCancelled,
		To:   models.StatusCancelled,
	})

	rec := s.postStripe(stripeUpdateBody, signStripe(stripeUpdateBody))

	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "rejected")
}

func (s *WebhookHandlersSuite) TestInternalFailureReturns500() {
	s.billing.On("ProcessEvent", mock.Anything, mock.Anything).Return(errors.New("db down"))

	rec := s.postStripe(stripeUpdateBody, signStripe(stripeUpdateBody))
	s.Equal(http.StatusInternalServerError, rec.Code)
}

func (s *WebhookHandlersSuite) TestOversizedPayloadRejected() {
	body := `{"id": "evt_big", "type": "x", "padding": "` + strings.Repeat("a", maxWebhookBodySize) + `"}`
	rec := s.postStripe(body, signStripe(body))
	s.Equal(http.StatusRequestEntityTooLarge, rec.Code)
}

func (s *WebhookHandlersSuite) TestPaddleEndpointVerifiesItsOwnScheme() {
	body := `{
		"event_id": "evt_pdl",
		"event_type": "subscription.canceled",
		"occurred_at": "2026-03-01T12:00:00Z",
		"data": {"id": "sub_pdl", "customer_id": "ctm_1", "status": "canceled"}
	}`
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d:%s", ts, body)
	signature := fmt.Sprintf("ts=%d;h1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	s.billing.On("ProcessEvent", mock.Anything, mock.MatchedBy(func(ev *providers.Event) bool {
		return ev.Provider == providers.ProviderPaddle && ev.Kind == providers.KindSubscriptionCancelled
	})).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paddle", strings.NewReader(body))
	req.Header.Set("Paddle-Signature", signature)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handlers.PaddleWebhook(c); err != nil {
		s.echo.HTTPErrorHandler(err, c)
	}

	assert.Equal(s.T(), http.StatusOK, rec.Code)
	s.billing.AssertExpectations(s.T())
}

func TestWebhookHandlersSuite(t *testing.T) {
	suite.Run(t, new(WebhookHandlersSuite))
}
