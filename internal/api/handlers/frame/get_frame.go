package frame

import (
	"github.com/labstack/echo/v4"
	"github/chapool/embedded-wallet/internal/api"
	"github/chapool/embedded-wallet/internal/bus/wsport"
	"github/chapool/embedded-wallet/internal/util"
)

func GetFrameRoute(s *api.Server) *echo.Route {
	return s.Router.Frame.GET("", getFrameHandler(s))
}

// getFrameHandler attaches a host page over a WebSocket and serves it until
// either side hangs up.
func getFrameHandler(s *api.Server) echo.HandlerFunc {
	upgrader := wsport.NewUpgrader(s.Config.Frame.AllowedOrigins)

	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		port, err := upgrader.Upgrade(c.Response(), c.Request())
		if err != nil {
			// The upgrader already answered the request.
			log.Debug().Err(err).Str("origin", c.Request().Header.Get(echo.HeaderOrigin)).Msg("Rejected frame connection")
			return nil
		}

		s.Frame.Mount(ctx, port)

		return nil
	}
}
