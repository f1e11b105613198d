package test

import (
	"context"
	"testing"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/bus"
	"github/chapool/embedded-wallet/internal/chain"
	"github/chapool/embedded-wallet/internal/custody"
	"github/chapool/embedded-wallet/internal/frame"
	"github/chapool/embedded-wallet/internal/iframe"
	"github/chapool/embedded-wallet/internal/provider"
	"github/chapool/embedded-wallet/internal/wallet"
	"github/chapool/embedded-wallet/internal/wallet/keystore"
	"github/chapool/embedded-wallet/internal/worker"
)

const (
	// FrameOrigin is the origin of the in-process wallet frame.
	FrameOrigin = "https://wallet.example"
	// FrameURL is the URL the in-process wallet frame is registered at.
	FrameURL = FrameOrigin + "/embedded"
)

// StackOptions tune NewStack.
type StackOptions struct {
	// Clock drives the custody auto lock. Defaults to the wall clock.
	Clock clock.Clock
	// Approver defaults to iframe.AutoApprover.
	Approver iframe.Approver
	// Locked leaves the wallet without a password source, so it stays
	// locked until Unlock is called.
	Locked bool
}

// Stack is a host page and the wallet frame wired through an in-process
// bus, with a real custody worker behind the frame.
type Stack struct {
	Host     *bus.Window
	Bus      *bus.Bus
	Keystore keystore.Service
	Wallet   wallet.Service
	Worker   *worker.Client
	App      *iframe.App
	Channel  *frame.Channel
	Provider *provider.Provider
	Thru     *chain.Thru
}

// NewStack builds a Stack around a fresh test keystore. Everything is torn
// down when the test ends.
func NewStack(t *testing.T, opts StackOptions) *Stack {
	t.Helper()

	if opts.Clock == nil {
		opts.Clock = clock.NewDefaultClock()
	}

	cfg := NewTestConfig(t)
	ks := CreateTestKeystore(t, cfg)

	client, err := worker.NewClient(worker.Config{
		Spawner: custody.Spawner(custody.Config{Clock: opts.Clock}),
		Clock:   opts.Clock,
	})
	require.NoError(t, err)
	require.NoError(t, client.Initialize(t.Context()))

	var password wallet.PasswordFunc
	if !opts.Locked {
		password = wallet.StaticPassword(TestPassword)
	}

	w := wallet.NewService()
	app, err := iframe.New(iframe.Config{
		Wallet:   w,
		Custody:  client,
		Keystore: ks,
		Approver: opts.Approver,
		Password: password,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = app.Run(ctx) }()

	b := bus.New()
	require.NoError(t, b.Register(FrameURL, app.Mount))

	host := bus.NewWindow(HostOrigin)
	ch, err := frame.NewChannel(frame.Config{
		URL:      FrameURL,
		Origin:   HostOrigin,
		Launcher: b.Launcher(host),
		Clock:    opts.Clock,
	})
	require.NoError(t, err)

	p, err := provider.New(ch)
	require.NoError(t, err)

	t.Cleanup(func() {
		p.Destroy()
		host.Close()
		app.Close()
		cancel()
		client.Terminate()
	})

	return &Stack{
		Host:     host,
		Bus:      b,
		Keystore: ks,
		Wallet:   w,
		Worker:   client,
		App:      app,
		Channel:  ch,
		Provider: p,
		Thru:     chain.NewThru(p),
	}
}
