package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationService dispatches billing notifications to the external
// notification sender. Delivery is best-effort: failures are logged by
// callers and never roll back the transition that triggered them.
type NotificationService interface {
	SendTrialExpiringReminder(ctx context.Context, tenantID, subscriptionID uuid.UUID, daysLeft int) error
	SendTrialExpired(ctx context.Context, tenantID, subscriptionID uuid.UUID) error
	SendPaymentFailed(ctx context.Context, tenantID, subscriptionID uuid.UUID, reason string) error
}

type notificationService struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewNotificationService(endpoint string, logger *zap.Logger) NotificationService {
	return &notificationService{
		endpoint: endpoint,
		httpClient: &http.Client{
			// Webhook acknowledgement must not wait on a slow notifier.
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

type notificationPayload struct {
	Kind           string    `json:"kind"`
	TenantID       uuid.UUID `json:"tenant_id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	DaysLeft       int       `json:"days_left,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

func (s *notificationService) SendTrialExpiringReminder(ctx context.Context, tenantID, subscriptionID uuid.UUID, daysLeft int) error {
	return s.dispatch(ctx, &notificationPayload{
		Kind:           "trial_expiring",
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
		DaysLeft:       daysLeft,
	})
}

func (s *notificationService) SendTrialExpired(ctx context.Context, tenantID, subscriptionID uuid.UUID) error {
	return s.dispatch(ctx, &notificationPayload{
		Kind:           "trial_expired",
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
	})
}

func (s *notificationService) SendPaymentFailed(ctx context.Context, tenantID, subscriptionID uuid.UUID, reason string) error {
	return s.dispatch(ctx, &notificationPayload{
		Kind:           "payment_failed",
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
		Reason:         reason,
	})
}

func (s *notificationService) dispatch(ctx context.Context, payload *notificationPayload) error {
	if s.endpoint == "" {
		s.logger.Debug("notifier endpoint not configured, dropping notification",
			zap.String("kind", payload.Kind))
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification sender returned %d", resp.StatusCode)
	}
	return nil
}
