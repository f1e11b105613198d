package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github/chapool/embedded-wallet/internal/util"
)

// LoggerConfig configures the request logger.
type LoggerConfig struct {
	// Skipper defines a function to skip the middleware.
	Skipper echoMiddleware.Skipper
	// Level of the request summary line.
	Level zerolog.Level
}

// DefaultLoggerConfig logs every request at debug level.
var DefaultLoggerConfig = LoggerConfig{
	Skipper: echoMiddleware.DefaultSkipper,
	Level:   zerolog.DebugLevel,
}

// Logger returns a request logger with DefaultLoggerConfig.
func Logger() echo.MiddlewareFunc {
	return LoggerWithConfig(DefaultLoggerConfig)
}

// LoggerWithConfig attaches a request scoped zerolog logger to the request
// context and logs a summary line once the handler returns. Frame
// connections log their summary when the host detaches.
func LoggerWithConfig(config LoggerConfig) echo.MiddlewareFunc {
	if config.Skipper == nil {
		config.Skipper = DefaultLoggerConfig.Skipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper(c) {
				return next(c)
			}

			req := c.Request()
			res := c.Response()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
			}

			l := log.With().
				Str("id", id).
				Str("method", req.Method).
				Str("url", req.URL.String()).
				Logger()
			c.SetRequest(req.WithContext(util.WithLogger(req.Context(), l)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			l.WithLevel(config.Level).
				Int("status", res.Status).
				Int64("bytes_out", res.Size).
				Dur("duration", time.Since(start)).
				Str("origin", req.Header.Get(echo.HeaderOrigin)).
				Str("remote_ip", c.RealIP()).
				Err(err).
				Msg("Request")

			return nil
		}
	}
}
