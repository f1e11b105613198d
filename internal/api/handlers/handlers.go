package handlers

import (
	"github.com/labstack/echo/v4"
	"github/chapool/embedded-wallet/internal/api"
	"github/chapool/embedded-wallet/internal/api/handlers/common"
	"github/chapool/embedded-wallet/internal/api/handlers/frame"
)

func AttachAllRoutes(s *api.Server) {
	// attach our routes
	s.Router.Routes = []*echo.Route{
		common.GetHealthyRoute(s),
		common.GetMetricsRoute(s),
		common.GetReadyRoute(s),
		frame.GetFrameRoute(s),
	}
}
