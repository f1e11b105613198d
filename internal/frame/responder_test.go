package frame_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/bus"
	"github/chapool/embedded-wallet/internal/frame"
	"github/chapool/embedded-wallet/internal/protocol"
)

func nextEnvelope(t *testing.T, w *bus.Window) *protocol.Envelope {
	t.Helper()

	select {
	case ev := <-w.Messages():
		env, err := protocol.DecodeEnvelope(ev.Data)
		require.NoError(t, err)
		return env
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestResponderAnswersOnlyParent(t *testing.T) {
	host := bus.NewWindow(hostOrigin)
	defer host.Close()
	win := bus.NewWindow(frameOrigin)
	hostPort, framePort := bus.Link(host, win)
	defer hostPort.Close()

	var calls atomic.Int32
	r, err := frame.NewResponder(framePort, frame.HandlerFunc(func(_ context.Context, req *protocol.Request) (any, error) {
		calls.Add(1)
		return req.Origin, nil
	}), frame.ResponderConfig{})
	require.NoError(t, err)
	assert.Equal(t, hostOrigin, r.ParentOrigin())

	ctx, cancel := context.WithCancel(t.Context())
	served := make(chan error, 1)
	go func() { served <- r.Serve(ctx) }()

	assert.True(t, nextEnvelope(t, host).IsReady())

	// A request from a foreign window never reaches the handler.
	rogue := bus.NewWindow("https://evil.example")
	defer rogue.Close()
	forged, err := protocol.NewRequest(hostOrigin, protocol.RequestGetAccounts, nil)
	require.NoError(t, err)
	data, err := json.Marshal(forged)
	require.NoError(t, err)
	require.NoError(t, bus.Post(rogue, win, data, bus.AnyOrigin))

	// The body claims a different origin; the stamped one wins.
	req, err := protocol.NewRequest("https://spoofed.example", protocol.RequestGetAccounts, nil)
	require.NoError(t, err)
	data, err = json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, hostPort.PostMessage(data, frameOrigin))

	env := nextEnvelope(t, host)
	assert.Equal(t, req.ID, env.ID)

	var origin string
	require.NoError(t, env.Response().DecodeResult(&origin))
	assert.Equal(t, hostOrigin, origin)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestResponderIgnoresNonRequests(t *testing.T) {
	host := bus.NewWindow(hostOrigin)
	defer host.Close()
	win := bus.NewWindow(frameOrigin)
	hostPort, framePort := bus.Link(host, win)
	defer hostPort.Close()

	var calls atomic.Int32
	r, err := frame.NewResponder(framePort, frame.HandlerFunc(func(context.Context, *protocol.Request) (any, error) {
		calls.Add(1)
		return nil, nil
	}), frame.ResponderConfig{})
	require.NoError(t, err)

	go func() { _ = r.Serve(t.Context()) }()
	assert.True(t, nextEnvelope(t, host).IsReady())

	require.NoError(t, hostPort.PostMessage([]byte("not json"), frameOrigin))
	require.NoError(t, hostPort.PostMessage([]byte(`{"id":"1","type":"dropTables"}`), frameOrigin))

	assert.Never(t, func() bool { return calls.Load() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestResponderRequiresParentOrigin(t *testing.T) {
	_, err := frame.NewResponder(nopPort{}, frame.HandlerFunc(func(context.Context, *protocol.Request) (any, error) {
		return nil, nil
	}), frame.ResponderConfig{})
	require.Error(t, err)

	r, err := frame.NewResponder(nopPort{}, frame.HandlerFunc(func(context.Context, *protocol.Request) (any, error) {
		return nil, nil
	}), frame.ResponderConfig{ParentOrigin: hostOrigin})
	require.NoError(t, err)
	assert.Equal(t, hostOrigin, r.ParentOrigin())
}

type nopPort struct{}

func (nopPort) PostMessage([]byte, string) error  { return nil }
func (nopPort) Messages() <-chan bus.MessageEvent { return nil }
func (nopPort) Close() error                      { return nil }
