package common

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/embedded-wallet/internal/api"
	"github/chapool/embedded-wallet/internal/util"
)

// statusNotReady is returned while the server cannot serve frames yet.
const statusNotReady = 521

func GetReadyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/ready", getReadyHandler(s))
}

// Readiness check
// This endpoint returns 200 when our Service is ready to serve traffic
// (i.e. the custody worker answers requests).
// Returns 521 if the service is not ready yet.
func getReadyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := util.LogFromContext(c.Request().Context())

		if !s.Ready() {
			log.Warn().Msg("Readiness probe failed, server is not fully initialized")
			return c.String(statusNotReady, "Not ready.")
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), s.Config.Management.ReadinessTimeout)
		defer cancel()

		if errs := ProbeReadiness(ctx, s); len(errs) > 0 {
			log.Warn().Errs("errs", errs).Msg("Readiness probe failed")
			return c.String(statusNotReady, "Not ready.")
		}

		return c.String(http.StatusOK, "Ready.")
	}
}
