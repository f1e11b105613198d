package test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/api"
	"github/chapool/embedded-wallet/internal/api/router"
	"github/chapool/embedded-wallet/internal/config"
)

// WithTestServer runs closure with a fully wired server backed by a fresh
// test keystore. The server is shut down afterwards.
func WithTestServer(t *testing.T, closure func(s *api.Server)) {
	t.Helper()

	WithTestServerConfigurable(t, NewTestConfig(t), closure)
}

// WithTestServerConfigurable is WithTestServer with a caller supplied
// config. A keystore is created unless one already exists at the
// configured path.
func WithTestServerConfigurable(t *testing.T, cfg config.Server, closure func(s *api.Server)) {
	t.Helper()

	withTestServer(t, cfg, clock.NewDefaultClock(), closure)
}

// WithTestServerClock is WithTestServer driven by clk, e.g. to trigger the
// inactivity auto lock.
func WithTestServerClock(t *testing.T, clk clock.Clock, closure func(s *api.Server)) {
	t.Helper()

	withTestServer(t, NewTestConfig(t), clk, closure)
}

func withTestServer(t *testing.T, cfg config.Server, clk clock.Clock, closure func(s *api.Server)) {
	t.Helper()

	ensureKeystore(t, cfg)

	s, err := api.InitNewServerWithClock(cfg, clk)
	require.NoError(t, err, "failed to initialize server")

	require.NoError(t, router.Init(s), "failed to initialize router")

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	app := s.Frame
	go func() {
		defer close(done)
		_ = app.Run(ctx)
	}()

	defer func() {
		cancel()
		<-done

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if errs := s.Shutdown(shutdownCtx); len(errs) > 0 {
			t.Errorf("failed to shut down test server: %v", errs)
		}
	}()

	closure(s)
}

func ensureKeystore(t *testing.T, cfg config.Server) {
	t.Helper()

	ks, err := api.NewKeystore(cfg)
	require.NoError(t, err)

	exists, err := ks.Exists(t.Context())
	require.NoError(t, err)
	if !exists {
		CreateTestKeystore(t, cfg)
	}
}

// PerformRequest serves a single request against the echo instance of s.
func PerformRequest(t *testing.T, s *api.Server, method string, path string, body io.Reader, headers http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header[k] = v
	}

	res := httptest.NewRecorder()
	s.Echo.ServeHTTP(res, req)

	return res
}
