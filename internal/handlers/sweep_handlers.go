package handlers

import (
	"crypto/subtle"
	"net/http"

	"spendly/internal/jobs"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// SweepHandlers exposes the trial sweeper to the external cron invoker.
// The caller authenticates with a shared secret header; the sweep itself
// is idempotent so overlapping triggers are safe.
type SweepHandlers struct {
	sweeper *jobs.TrialSweeper
	secret  string
	logger  *zap.Logger
}

func NewSweepHandlers(sweeper *jobs.TrialSweeper, secret string, logger *zap.Logger) *SweepHandlers {
	return &SweepHandlers{
		sweeper: sweeper,
		secret:  secret,
		logger:  logger,
	}
}

// TriggerSweep handles POST /internal/sweep
func (h *SweepHandlers) TriggerSweep(c echo.Context) error {
	provided := c.Request().Header.Get("X-Sweep-Secret")
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid sweep secret")
	}

	stats, err := h.sweeper.Run(c.Request().Context())
	if err != nil {
		h.logger.Error("triggered trial sweep failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "sweep failed")
	}
	return c.JSON(http.StatusOK, stats)
}
