package worker_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/worker"
)

// fakeWorker is the worker end of a pipe driven by the test.
type fakeWorker struct {
	t        *testing.T
	port     worker.Port
	requests chan protocol.WorkerRequest
}

func (w *fakeWorker) serve() {
	for data := range w.port.Messages() {
		var req protocol.WorkerRequest
		if err := json.Unmarshal(data, &req); err != nil {
			w.t.Error(err)
			continue
		}
		w.requests <- req
	}
}

func (w *fakeWorker) next() protocol.WorkerRequest {
	w.t.Helper()

	select {
	case req := <-w.requests:
		return req
	case <-time.After(time.Second):
		w.t.Fatal("no request reached the worker")
		return protocol.WorkerRequest{}
	}
}

func (w *fakeWorker) post(msg *protocol.WorkerMessage) {
	w.t.Helper()

	data, err := json.Marshal(msg)
	require.NoError(w.t, err)
	require.NoError(w.t, w.port.PostMessage(data))
}

type fixture struct {
	client *worker.Client
	worker *fakeWorker
	spawns atomic.Int32
}

func newFixture(t *testing.T, clk clock.Clock) *fixture {
	t.Helper()

	f := &fixture{}
	spawner := worker.SpawnFunc(func(context.Context) (worker.Port, error) {
		f.spawns.Add(1)

		client, server := worker.Pipe()
		f.worker = &fakeWorker{t: t, port: server, requests: make(chan protocol.WorkerRequest, 8)}
		go f.worker.serve()

		return client, nil
	})

	c, err := worker.NewClient(worker.Config{Spawner: spawner, Clock: clk})
	require.NoError(t, err)
	t.Cleanup(c.Terminate)
	f.client = c

	require.NoError(t, c.Initialize(t.Context()))

	return f
}

func TestNewClientRequiresSpawner(t *testing.T) {
	_, err := worker.NewClient(worker.Config{})
	require.Error(t, err)
}

func TestCallBeforeInitialize(t *testing.T) {
	c, err := worker.NewClient(worker.Config{Spawner: worker.SpawnFunc(func(context.Context) (worker.Port, error) {
		a, _ := worker.Pipe()
		return a, nil
	})})
	require.NoError(t, err)

	_, err = c.IsUnlocked(t.Context())
	assert.ErrorIs(t, err, protocol.ErrChannelClosed)
}

func TestInitializeIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.client.Initialize(t.Context()))
	require.NoError(t, f.client.Initialize(t.Context()))

	assert.Equal(t, int32(1), f.spawns.Load())
}

func TestCallRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	type result struct {
		account *protocol.DerivedAccount
		err     error
	}
	done := make(chan result, 1)
	go func() {
		acc, err := f.client.DeriveAccount(t.Context(), 7)
		done <- result{acc, err}
	}()

	req := f.worker.next()
	assert.Equal(t, protocol.WorkerDeriveAccount, req.Type)

	var p protocol.IndexPayload
	require.NoError(t, req.DecodePayload(&p))
	assert.Equal(t, uint32(7), p.Index)

	// A response for an unknown id is dropped.
	f.worker.post(protocol.NewWorkerResponse("unknown", protocol.DerivedAccount{}, nil))
	f.worker.post(protocol.NewWorkerResponse(req.ID, protocol.DerivedAccount{Address: "ta", Path: "m/44'/9999'/7'/0'"}, nil))

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "m/44'/9999'/7'/0'", res.account.Path)
	assert.Equal(t, 0, f.client.Pending())
}

func TestCallPropagatesWorkerError(t *testing.T) {
	f := newFixture(t, nil)

	done := make(chan error, 1)
	go func() { done <- f.client.Unlock(t.Context(), json.RawMessage(`{}`), "nope") }()

	req := f.worker.next()
	f.worker.post(protocol.NewWorkerResponse(req.ID, nil, protocol.ErrInvalidPassword))

	err := <-done
	assert.ErrorIs(t, err, protocol.ErrInvalidPassword)
	assert.False(t, protocol.IsTransport(err))
}

func TestCallTimesOut(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(0, 0))
	f := newFixture(t, clk)

	done := make(chan error, 1)
	go func() { _, err := f.client.IsUnlocked(t.Context()); done <- err }()
	req := f.worker.next()

	clk.SetTime(clk.Now().Add(worker.DefaultRequestTimeout + time.Second))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, protocol.ErrRequestTimeout)
	case <-time.After(time.Second):
		t.Fatal("call did not time out")
	}
	assert.Equal(t, 0, f.client.Pending())

	// A late response finds no entry.
	f.worker.post(protocol.NewWorkerResponse(req.ID, protocol.UnlockedResult{}, nil))
}

func TestWorkerErrorRejectsEverything(t *testing.T) {
	f := newFixture(t, nil)

	done := make(chan error, 2)
	for range 2 {
		go func() { _, err := f.client.GetPublicKey(t.Context(), 0); done <- err }()
	}
	f.worker.next()
	f.worker.next()

	f.worker.post(&protocol.WorkerMessage{
		Kind:  protocol.WorkerKindError,
		Error: &protocol.Error{Code: protocol.CodeInternal, Message: "out of memory"},
	})

	for range 2 {
		assert.ErrorIs(t, <-done, protocol.ErrWorkerCrashed)
	}

	_, err := f.client.IsUnlocked(t.Context())
	assert.ErrorIs(t, err, protocol.ErrWorkerCrashed)

	// Crashed workers are never respawned.
	require.NoError(t, f.client.Initialize(t.Context()))
	assert.Equal(t, int32(1), f.spawns.Load())
}

func TestWorkerExitIsACrash(t *testing.T) {
	f := newFixture(t, nil)

	done := make(chan error, 1)
	go func() { done <- f.client.Lock(t.Context()) }()
	f.worker.next()

	require.NoError(t, f.worker.port.Close())

	assert.ErrorIs(t, <-done, protocol.ErrWorkerCrashed)
}

func TestTerminateRejectsPending(t *testing.T) {
	f := newFixture(t, nil)

	done := make(chan error, 1)
	go func() { done <- f.client.Lock(t.Context()) }()
	f.worker.next()

	f.client.Terminate()

	err := <-done
	assert.ErrorIs(t, err, protocol.ErrChannelClosed)

	err = f.client.Lock(t.Context())
	assert.ErrorIs(t, err, protocol.ErrChannelClosed)
}

func TestEventsReachSubscribers(t *testing.T) {
	f := newFixture(t, nil)

	events := make(chan protocol.WorkerEvent, 1)
	sub := f.client.SubscribeEvents(events)
	defer sub.Unsubscribe()

	f.worker.post(&protocol.WorkerMessage{Kind: protocol.WorkerKindEvent, Event: protocol.WorkerEventAutoLock})

	select {
	case ev := <-events:
		assert.Equal(t, protocol.WorkerEventAutoLock, ev.Name)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}
