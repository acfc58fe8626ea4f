package handlers

import (
	"errors"
	"io"
	"net/http"

	"spendly/internal/providers"
	"spendly/internal/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// maxWebhookBodySize caps webhook payloads (64 KB). Provider payloads are
// small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// WebhookHandlers exposes one endpoint per payment provider. The routes are
// unauthenticated: authenticity comes from the provider signature, verified
// against the raw request bytes before anything is parsed.
type WebhookHandlers struct {
	registry providers.Registry
	billing  services.BillingService
	logger   *zap.Logger
}

func NewWebhookHandlers(registry providers.Registry, billing services.BillingService, logger *zap.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		registry: registry,
		billing:  billing,
		logger:   logger,
	}
}

// StripeWebhook handles POST /webhooks/stripe
func (h *WebhookHandlers) StripeWebhook(c echo.Context) error {
	return h.handle(c, providers.ProviderStripe)
}

// PaypalWebhook handles POST /webhooks/paypal
func (h *WebhookHandlers) PaypalWebhook(c echo.Context) error {
	return h.handle(c, providers.ProviderPaypal)
}

// PaddleWebhook handles POST /webhooks/paddle
func (h *WebhookHandlers) PaddleWebhook(c echo.Context) error {
	return h.handle(c, providers.ProviderPaddle)
}

// handle runs the full pipeline: verify signature, normalize, apply.
//
// Response contract: 200 acknowledges receipt, including duplicates,
// unsupported event kinds and unresolved tenants, so the provider never
// retries events the core intentionally ignores. 400 malformed, 401 bad
// signature, 5xx only for genuine internal failure where a retry is wanted.
func (h *WebhookHandlers) handle(c echo.Context, name providers.Provider) error {
	adapter, ok := h.registry.Get(name)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown provider")
	}

	// The raw, untouched body: signatures are computed over exact bytes.
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBodySize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if len(body) > maxWebhookBodySize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
	}

	signature := c.Request().Header.Get(adapter.SignatureHeader())
	if signature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing signature header")
	}
	if !adapter.VerifySignature(body, signature) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook signature")
	}

	event, err := adapter.Normalize(body)
	if err != nil {
		if errors.Is(err, providers.ErrUnsupportedEvent) {
			h.logger.Debug("ignoring unsupported webhook event",
				zap.String("provider", string(name)), zap.Error(err))
			return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
		}
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	if err := h.billing.ProcessEvent(c.Request().Context(), event); err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateEvent):
			return c.JSON(http.StatusOK, map[string]string{"status": "duplicate"})
		case errors.Is(err, services.ErrUnresolvedTenant):
			// Data-linkage gap for manual reconciliation; retrying the
			// delivery would not resolve it.
			h.logger.Warn("billing event references unknown tenant",
				zap.String("provider", string(name)),
				zap.String("external_event_id", event.ExternalEventID),
				zap.String("external_customer_id", event.ExternalCustomerID),
				zap.Error(err))
			return c.JSON(http.StatusOK, map[string]string{"status": "unlinked"})
		}
		var invalid *services.InvalidTransitionError
		if errors.As(err, &invalid) {
			h.logger.Warn("rejected illegal subscription transition",
				zap.String("provider", string(name)),
				zap.String("external_event_id", event.ExternalEventID),
				zap.String("from", string(invalid.From)),
				zap.String("to", string(invalid.To)))
			return c.JSON(http.StatusOK, map[string]string{"status": "rejected"})
		}
		h.logger.Error("webhook processing failed",
			zap.String("provider", string(name)),
			zap.String("external_event_id", event.ExternalEventID),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "event processing failed")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "processed",
		"event":  string(event.Kind),
	})
}
