package common

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github/chapool/embedded-wallet/internal/api"
	"github/chapool/embedded-wallet/internal/util"
)

func GetHealthyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/healthy", getHealthyHandler(s))
}

// Liveness check
// This endpoint returns 200 while the custody worker runs and the
// configured paths are writeable, 521 otherwise.
func getHealthyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), s.Config.Management.LivenessTimeout)
		defer cancel()

		if errs := ProbeLiveness(ctx, s); len(errs) > 0 {
			util.LogFromContext(ctx).Warn().Errs("errs", errs).Msg("Liveness probe failed")
			return c.String(statusNotReady, "Not healthy.")
		}

		return c.String(http.StatusOK, "Healthy.")
	}
}
