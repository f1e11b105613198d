package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/api/middleware"
	"github/chapool/embedded-wallet/internal/util"
)

func TestLoggerAttachesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })

	e := echo.New()
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{Level: zerolog.InfoLevel}))
	e.GET("/ping", func(c echo.Context) error {
		util.LogFromContext(c.Request().Context()).Info().Msg("inside")
		return c.String(http.StatusOK, "pong")
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inside, summary map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inside))
	require.NoError(t, json.Unmarshal(lines[1], &summary))

	assert.Equal(t, "inside", inside["message"])
	assert.Equal(t, "req-1", inside["id"])
	assert.Equal(t, "Request", summary["message"])
	assert.EqualValues(t, http.StatusOK, summary["status"])
	assert.Equal(t, "/ping", summary["url"])
}

func TestLoggerReportsHandlerErrors(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })

	e := echo.New()
	e.Use(middleware.Logger())
	e.GET("/missing", func(echo.Context) error {
		return echo.ErrNotFound
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)

	var summary map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &summary))
	assert.EqualValues(t, http.StatusNotFound, summary["status"])
	assert.Contains(t, summary, "error")
}
