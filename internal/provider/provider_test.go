package provider_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/bus"
	"github/chapool/embedded-wallet/internal/frame"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/provider"
	"golang.org/x/sync/errgroup"
)

const (
	hostOrigin  = "https://dapp.example"
	frameOrigin = "https://wallet.example"
	frameURL    = frameOrigin + "/embedded"
)

var (
	accountA = protocol.Account{AccountType: protocol.AccountTypeThru, Address: "taA", Label: "Account 1"}
	accountB = protocol.Account{AccountType: protocol.AccountTypeThru, Address: "taB", Label: "Account 2"}
)

// scriptedWallet answers host requests the way the tests need.
type scriptedWallet struct {
	accounts      []protocol.Account
	release       chan struct{}
	selecting     chan struct{}
	selectRelease chan struct{}
	connectErr    error
	disconnectErr error

	connects atomic.Int32
}

func (w *scriptedWallet) HandleRequest(ctx context.Context, req *protocol.Request) (any, error) {
	switch req.Type {
	case protocol.RequestConnect:
		w.connects.Add(1)
		if w.release != nil {
			select {
			case <-w.release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if w.connectErr != nil {
			return nil, w.connectErr
		}
		return protocol.ConnectResult{WalletName: "Thru", Accounts: w.accounts}, nil

	case protocol.RequestDisconnect:
		return struct{}{}, w.disconnectErr

	case protocol.RequestSelectAccount:
		var p protocol.SelectAccountPayload
		if err := req.DecodePayload(&p); err != nil {
			return nil, err
		}
		if w.selectRelease != nil {
			close(w.selecting)
			select {
			case <-w.selectRelease:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return protocol.SelectAccountResult{
			Account: protocol.Account{AccountType: protocol.AccountTypeThru, Address: p.Address, Label: "Selected"},
		}, nil

	case protocol.RequestGetAccounts:
		return protocol.GetAccountsResult{Accounts: w.accounts}, nil

	default:
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "unexpected %s", req.Type)
	}
}

type harness struct {
	host      *bus.Window
	provider  *provider.Provider
	responder chan *frame.Responder
}

func newHarness(t *testing.T, w *scriptedWallet) *harness {
	t.Helper()

	h := &harness{
		host:      bus.NewWindow(hostOrigin),
		responder: make(chan *frame.Responder, 1),
	}

	b := bus.New()
	require.NoError(t, b.Register(frameURL, func(ctx context.Context, port bus.Port) {
		r, err := frame.NewResponder(port, w, frame.ResponderConfig{})
		if err != nil {
			t.Error(err)
			return
		}
		h.responder <- r
		_ = r.Serve(ctx)
	}))

	ch, err := frame.NewChannel(frame.Config{URL: frameURL, Origin: hostOrigin, Launcher: b.Launcher(h.host)})
	require.NoError(t, err)

	p, err := provider.New(ch)
	require.NoError(t, err)
	h.provider = p

	t.Cleanup(func() {
		p.Destroy()
		h.host.Close()
	})

	return h
}

func (h *harness) broadcast(t *testing.T, name protocol.EventName, data any) {
	t.Helper()

	var r *frame.Responder
	select {
	case r = <-h.responder:
		h.responder <- r
	case <-time.After(time.Second):
		t.Fatal("frame was not launched")
	}

	require.NoError(t, r.Broadcast(name, data))
}

func TestInitializeIsIdempotent(t *testing.T) {
	h := newHarness(t, &scriptedWallet{})
	ctx := t.Context()

	assert.False(t, h.provider.IsReady())

	var g errgroup.Group
	for range 4 {
		g.Go(func() error { return h.provider.Initialize(ctx) })
	}
	require.NoError(t, g.Wait())

	assert.True(t, h.provider.IsReady())
	require.NoError(t, h.provider.Initialize(ctx))
}

func TestConnectIsSingleFlight(t *testing.T) {
	w := &scriptedWallet{accounts: []protocol.Account{accountA, accountB}, release: make(chan struct{})}
	h := newHarness(t, w)
	ctx := t.Context()

	results := make([]*protocol.ConnectResult, 5)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			res, err := h.provider.Connect(ctx, &protocol.AppMetadata{AppName: "dApp"})
			results[i] = res
			return err
		})
	}

	require.Eventually(t, func() bool { return w.connects.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(w.release)
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), w.connects.Load())
	for _, res := range results {
		assert.Equal(t, results[0], res)
	}
	assert.Equal(t, []protocol.Account{accountA, accountB}, results[0].Accounts)

	assert.True(t, h.provider.IsConnected())
	assert.Equal(t, accountA, h.provider.SelectedAccount().UnwrapOrFail(t))

	// Connected providers answer from the cache.
	again, err := h.provider.Connect(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, results[0], again)
	assert.Equal(t, int32(1), w.connects.Load())
}

func TestConnectFailureEmitsError(t *testing.T) {
	h := newHarness(t, &scriptedWallet{connectErr: protocol.ErrUserRejected})

	errs := make(chan *provider.Event, 1)
	h.provider.On(protocol.EventError, func(e *provider.Event) { errs <- e })

	_, err := h.provider.Connect(t.Context(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrUserRejected)
	assert.False(t, h.provider.IsConnected())

	select {
	case e := <-errs:
		assert.ErrorIs(t, e.Err, protocol.ErrUserRejected)
	case <-time.After(time.Second):
		t.Fatal("error event not emitted")
	}
}

func TestConnectEmitsConnect(t *testing.T) {
	h := newHarness(t, &scriptedWallet{accounts: []protocol.Account{accountA}})

	connects := make(chan *provider.Event, 1)
	h.provider.On(protocol.EventConnect, func(e *provider.Event) { connects <- e })

	_, err := h.provider.Connect(t.Context(), nil)
	require.NoError(t, err)

	e := <-connects
	assert.Equal(t, []protocol.Account{accountA}, e.Result.Accounts)
}

func TestDisconnectResetsEvenWhenRemoteFails(t *testing.T) {
	w := &scriptedWallet{accounts: []protocol.Account{accountA}, disconnectErr: errors.New("frame exploded")}
	h := newHarness(t, w)
	ctx := t.Context()

	_, err := h.provider.Connect(ctx, nil)
	require.NoError(t, err)
	require.True(t, h.provider.IsConnected())

	err = h.provider.Disconnect(ctx)
	require.Error(t, err)

	assert.False(t, h.provider.IsConnected())
	assert.Empty(t, h.provider.Accounts())
	assert.True(t, h.provider.SelectedAccount().IsNone())
	assert.Nil(t, h.provider.LastConnectResult())
}

func TestSelectAccountRequiresConnection(t *testing.T) {
	h := newHarness(t, &scriptedWallet{})

	_, err := h.provider.SelectAccount(t.Context(), "taB")
	assert.ErrorIs(t, err, protocol.ErrNotConnected)
}

func TestSelectAccountAppendsUnknownAccount(t *testing.T) {
	h := newHarness(t, &scriptedWallet{accounts: []protocol.Account{accountA}})
	ctx := t.Context()

	_, err := h.provider.Connect(ctx, nil)
	require.NoError(t, err)

	acc, err := h.provider.SelectAccount(ctx, "taX")
	require.NoError(t, err)
	assert.Equal(t, "taX", acc.Address)

	accounts := h.provider.Accounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, accountA, accounts[0])
	assert.Equal(t, acc, accounts[1])
	assert.Equal(t, acc, h.provider.SelectedAccount().UnwrapOrFail(t))

	// Selecting a cached account replaces it in place.
	again, err := h.provider.SelectAccount(ctx, "taA")
	require.NoError(t, err)
	accounts = h.provider.Accounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, again, accounts[0])
}

func TestLateSelectAccountReplyDoesNotRestoreSession(t *testing.T) {
	w := &scriptedWallet{
		accounts:      []protocol.Account{accountA},
		selecting:     make(chan struct{}),
		selectRelease: make(chan struct{}),
	}
	h := newHarness(t, w)
	ctx := t.Context()

	locks := make(chan *provider.Event, 1)
	h.provider.On(protocol.EventLock, func(e *provider.Event) { locks <- e })

	_, err := h.provider.Connect(ctx, nil)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := h.provider.SelectAccount(ctx, "taB")
		errc <- err
	}()

	select {
	case <-w.selecting:
	case <-time.After(time.Second):
		t.Fatal("selectAccount not received by the wallet")
	}

	h.broadcast(t, protocol.EventLock, nil)
	select {
	case <-locks:
	case <-time.After(time.Second):
		t.Fatal("lock event not emitted")
	}

	close(w.selectRelease)
	select {
	case err = <-errc:
	case <-time.After(time.Second):
		t.Fatal("selectAccount did not return")
	}

	assert.ErrorIs(t, err, protocol.ErrNotConnected)
	assert.False(t, h.provider.IsConnected())
	assert.Empty(t, h.provider.Accounts())
	assert.True(t, h.provider.SelectedAccount().IsNone())
}

func TestLockEventResetsSession(t *testing.T) {
	h := newHarness(t, &scriptedWallet{accounts: []protocol.Account{accountA}})

	locks := make(chan *provider.Event, 1)
	h.provider.On(protocol.EventLock, func(e *provider.Event) { locks <- e })

	_, err := h.provider.Connect(t.Context(), nil)
	require.NoError(t, err)

	h.broadcast(t, protocol.EventLock, nil)

	select {
	case <-locks:
	case <-time.After(time.Second):
		t.Fatal("lock event not emitted")
	}
	assert.False(t, h.provider.IsConnected())
	assert.Empty(t, h.provider.Accounts())
}

func TestAccountChangedUpdatesCaches(t *testing.T) {
	h := newHarness(t, &scriptedWallet{accounts: []protocol.Account{accountA}})

	changed := make(chan *provider.Event, 1)
	h.provider.On(protocol.EventAccountChanged, func(e *provider.Event) { changed <- e })

	_, err := h.provider.Connect(t.Context(), nil)
	require.NoError(t, err)

	h.broadcast(t, protocol.EventAccountChanged, protocol.AccountChangedData{Account: accountB})

	select {
	case e := <-changed:
		assert.Equal(t, accountB, *e.Account)
	case <-time.After(time.Second):
		t.Fatal("account_changed not emitted")
	}

	assert.Equal(t, []protocol.Account{accountA, accountB}, h.provider.Accounts())
	assert.Equal(t, accountB, h.provider.SelectedAccount().UnwrapOrFail(t))
	assert.Equal(t, []protocol.Account{accountA, accountB}, h.provider.LastConnectResult().Accounts)
}

func TestForeignEventsAreIgnored(t *testing.T) {
	h := newHarness(t, &scriptedWallet{accounts: []protocol.Account{accountA}})

	_, err := h.provider.Connect(t.Context(), nil)
	require.NoError(t, err)

	rogue := bus.NewWindow("https://evil.example")
	defer rogue.Close()

	for _, ev := range []*protocol.Event{
		{Broadcast: true, Event: protocol.EventLock},
		{Broadcast: true, Event: protocol.EventAccountChanged, Data: json.RawMessage(`{"account":{"accountType":"thru","address":"taEvil"}}`)},
	} {
		data, err := json.Marshal(ev)
		require.NoError(t, err)
		require.NoError(t, bus.Post(rogue, h.host, data, bus.AnyOrigin))
	}

	assert.Never(t, func() bool {
		return !h.provider.IsConnected() || len(h.provider.Accounts()) != 1
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestDestroyIsTerminal(t *testing.T) {
	h := newHarness(t, &scriptedWallet{accounts: []protocol.Account{accountA}})
	ctx := t.Context()

	_, err := h.provider.Connect(ctx, nil)
	require.NoError(t, err)

	h.provider.Destroy()
	assert.False(t, h.provider.IsConnected())

	_, err = h.provider.Connect(ctx, nil)
	assert.ErrorIs(t, err, protocol.ErrChannelClosed)

	h.provider.Destroy()
}
