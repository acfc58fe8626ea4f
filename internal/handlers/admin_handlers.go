package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"spendly/internal/models"
	"spendly/internal/repositories"
	"spendly/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AdminHandlers is the manual-reconciliation surface: support staff cancel
// or reactivate subscriptions directly and inspect a tenant's billing
// history. All routes sit behind JWT auth.
type AdminHandlers struct {
	billing      services.BillingService
	entitlements services.EntitlementService
	events       repositories.BillingEventRepository
	transactions repositories.TransactionRepository
	logger       *zap.Logger
}

func NewAdminHandlers(
	billing services.BillingService,
	entitlements services.EntitlementService,
	eventRepo repositories.BillingEventRepository,
	transactionRepo repositories.TransactionRepository,
	logger *zap.Logger,
) *AdminHandlers {
	return &AdminHandlers{
		billing:      billing,
		entitlements: entitlements,
		events:       eventRepo,
		transactions: transactionRepo,
		logger:       logger,
	}
}

// CancelSubscription handles POST /v1/admin/subscriptions/:id/cancel
func (h *AdminHandlers) CancelSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subscription id")
	}

	if err := h.billing.CancelSubscription(c.Request().Context(), id, models.SourceManual); err != nil {
		return h.transitionError(c, id, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

// ReactivateSubscription handles POST /v1/admin/subscriptions/:id/reactivate
func (h *AdminHandlers) ReactivateSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subscription id")
	}

	if err := h.billing.ReactivateSubscription(c.Request().Context(), id, models.SourceManual); err != nil {
		return h.transitionError(c, id, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "active"})
}

// BillingHistory handles GET /v1/admin/tenants/:id/billing-history
func (h *AdminHandlers) BillingHistory(c echo.Context) error {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant id")
	}
	limit, offset := paginationParams(c)

	ctx := c.Request().Context()
	events, err := h.events.ListByTenant(ctx, tenantID, limit, offset)
	if err != nil {
		h.logger.Error("billing history lookup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load billing history")
	}
	transactions, err := h.transactions.ListByTenant(ctx, tenantID, limit, offset)
	if err != nil {
		h.logger.Error("transaction history lookup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load billing history")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"events":       events,
		"transactions": transactions,
	})
}

// CheckEntitlement handles GET /v1/admin/tenants/:id/entitlements/:feature
func (h *AdminHandlers) CheckEntitlement(c echo.Context) error {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant id")
	}
	feature := c.Param("feature")

	allowed, err := h.entitlements.Check(c.Request().Context(), tenantID, feature)
	if err != nil {
		h.logger.Error("entitlement check failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "entitlement check failed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"feature": feature,
		"allowed": allowed,
	})
}

func (h *AdminHandlers) transitionError(c echo.Context, id uuid.UUID, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "subscription not found")
	}
	var invalid *services.InvalidTransitionError
	if errors.As(err, &invalid) {
		return echo.NewHTTPError(http.StatusConflict, invalid.Error())
	}
	h.logger.Error("manual subscription operation failed",
		zap.String("subscription_id", id.String()), zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "operation failed")
}

func paginationParams(c echo.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
