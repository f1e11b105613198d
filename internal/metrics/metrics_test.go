package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/metrics"
	"github/chapool/embedded-wallet/internal/protocol"
)

func TestHandlerExposesCollectors(t *testing.T) {
	m, err := metrics.New()
	require.NoError(t, err)

	m.ObserveRequest(metrics.ChannelFrame, "connect", nil)
	m.ObserveRequest(metrics.ChannelWorker, "unlock", errors.Wrap(protocol.ErrInvalidPassword, "unlock"))
	m.ObserveTimeout(metrics.ChannelFrame)
	m.ObserveLock(metrics.LockReasonAuto)
	m.SetPending(metrics.ChannelWorker, 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `embedded_wallet_requests_total{channel="worker",outcome="INVALID_PASSWORD",type="unlock"} 1`)
	assert.Contains(t, body, `embedded_wallet_requests_total{channel="frame",outcome="ok",type="connect"} 1`)
	assert.Contains(t, body, `embedded_wallet_custody_locks_total{reason="auto"} 1`)
	assert.Contains(t, body, `embedded_wallet_pending_requests{channel="worker"} 3`)
}

func TestNilServiceIsNoop(t *testing.T) {
	var m *metrics.Service
	assert.NotPanics(t, func() {
		m.ObserveRequest(metrics.ChannelFrame, "connect", nil)
		m.ObserveTimeout(metrics.ChannelFrame)
		m.ObserveDropped(metrics.ChannelFrame, "origin")
		m.SetPending(metrics.ChannelFrame, 1)
		m.ObserveLock(metrics.LockReasonManual)
	})
}
