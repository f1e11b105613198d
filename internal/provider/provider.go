// Package provider implements the host side session of the embedded
// wallet: initialization, connection state and the account cache, kept in
// sync with events broadcast by the wallet frame.
package provider

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/pubsub"
	"golang.org/x/sync/singleflight"
)

// Transport is the host end of the cross-window channel.
type Transport interface {
	Open(ctx context.Context) error
	Call(ctx context.Context, typ protocol.RequestType, payload any, out any) error
	On(name protocol.EventName, handler func(*protocol.Event)) func()
	Show()
	Hide()
	Teardown()
}

type state int

const (
	stateUninitialized state = iota
	stateInitializing
	stateReady
	stateDestroyed
)

const connectKey = "connect"

// Event is emitted to provider listeners.
type Event struct {
	Name protocol.EventName

	// Result is set for connect.
	Result *protocol.ConnectResult
	// Account is set for account_changed.
	Account *protocol.Account
	// Err is set for error and connect_error.
	Err error
}

// Provider tracks one wallet session over a Transport.
type Provider struct {
	transport Transport
	log       zerolog.Logger
	listeners *pubsub.Registry[protocol.EventName, *Event]
	flight    singleflight.Group

	mu          sync.Mutex
	state       state
	connected   bool
	accounts    []protocol.Account
	selected    fn.Option[protocol.Account]
	lastConnect *protocol.ConnectResult
	unsubscribe []func()
}

// New creates a provider over transport and subscribes to its events.
func New(transport Transport) (*Provider, error) {
	if transport == nil {
		return nil, errors.New("provider requires a transport")
	}

	p := &Provider{
		transport: transport,
		log:       log.With().Str("component", "provider").Logger(),
		listeners: pubsub.New[protocol.EventName, *Event](),
		selected:  fn.None[protocol.Account](),
	}

	p.unsubscribe = []func(){
		transport.On(protocol.EventDisconnect, p.onReset),
		transport.On(protocol.EventLock, p.onReset),
		transport.On(protocol.EventAccountChanged, p.onAccountChanged),
		transport.On(protocol.EventConnectStart, p.forward),
		transport.On(protocol.EventConnectError, p.forward),
		transport.On(protocol.EventError, p.forward),
	}

	return p, nil
}

// Initialize opens the transport. Concurrent callers share the same
// attempt; once ready it returns immediately.
func (p *Provider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case stateReady:
		p.mu.Unlock()
		return nil
	case stateDestroyed:
		p.mu.Unlock()
		return errors.Wrap(protocol.ErrChannelClosed, "provider destroyed")
	case stateUninitialized:
		p.state = stateInitializing
	case stateInitializing:
	}
	p.mu.Unlock()

	err := p.transport.Open(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateInitializing {
		return err
	}
	if err != nil {
		p.state = stateUninitialized
		return errors.Wrap(err, "failed to initialize provider")
	}

	p.state = stateReady
	p.log.Debug().Msg("Provider ready")

	return nil
}

// IsReady reports whether Initialize completed.
func (p *Provider) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state == stateReady
}

// Connect asks the wallet for a connection. A connected provider returns
// the last result without prompting again, and concurrent calls share a
// single request.
func (p *Provider) Connect(ctx context.Context, metadata *protocol.AppMetadata) (*protocol.ConnectResult, error) {
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.connected && p.lastConnect != nil {
		res := p.lastConnect.Clone()
		p.mu.Unlock()
		return res, nil
	}
	p.mu.Unlock()

	// The shared flight must not fail because the caller that started it
	// went away.
	flightCtx := context.WithoutCancel(ctx)
	ch := p.flight.DoChan(connectKey, func() (any, error) {
		return p.connect(flightCtx, metadata)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*protocol.ConnectResult).Clone(), nil //nolint:forcetypeassert // set by connect
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Provider) connect(ctx context.Context, metadata *protocol.AppMetadata) (*protocol.ConnectResult, error) {
	p.transport.Show()
	defer p.transport.Hide()

	var res protocol.ConnectResult
	if err := p.transport.Call(ctx, protocol.RequestConnect, protocol.ConnectPayload{Metadata: metadata}, &res); err != nil {
		p.log.Debug().Err(err).Msg("Connect failed")
		p.listeners.Emit(protocol.EventError, &Event{Name: protocol.EventError, Err: err})
		return nil, errors.Wrap(err, "failed to connect")
	}

	p.mu.Lock()
	p.connected = true
	p.accounts = append([]protocol.Account(nil), res.Accounts...)
	p.selected = fn.None[protocol.Account]()
	if len(res.Accounts) > 0 {
		p.selected = fn.Some(res.Accounts[0])
	}
	p.lastConnect = res.Clone()
	p.mu.Unlock()

	p.log.Info().Int("accounts", len(res.Accounts)).Msg("Connected")
	p.listeners.Emit(protocol.EventConnect, &Event{Name: protocol.EventConnect, Result: res.Clone()})

	return &res, nil
}

// Disconnect asks the wallet to drop the connection. Local state is reset
// whatever the outcome of the remote call.
func (p *Provider) Disconnect(ctx context.Context) error {
	defer func() {
		p.reset()
		p.listeners.Emit(protocol.EventDisconnect, &Event{Name: protocol.EventDisconnect})
	}()

	if err := p.transport.Call(ctx, protocol.RequestDisconnect, nil, nil); err != nil {
		return errors.Wrap(err, "failed to disconnect")
	}

	return nil
}

// SelectAccount makes address the selected account.
func (p *Provider) SelectAccount(ctx context.Context, address string) (protocol.Account, error) {
	if !p.IsConnected() {
		return protocol.Account{}, errors.WithStack(protocol.ErrNotConnected)
	}

	var res protocol.SelectAccountResult
	if err := p.transport.Call(ctx, protocol.RequestSelectAccount, protocol.SelectAccountPayload{Address: address}, &res); err != nil {
		return protocol.Account{}, errors.Wrapf(err, "failed to select account %s", address)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// A disconnect or lock that arrived while the request was in flight wins
	// over the late reply.
	if !p.connected {
		return protocol.Account{}, errors.Wrap(protocol.ErrNotConnected, "session reset while selecting account")
	}
	p.accounts = protocol.MergeAccount(p.accounts, res.Account)
	p.selected = fn.Some(res.Account)

	return res.Account, nil
}

// GetAccounts fetches the accounts granted to this origin from the wallet.
// The local cache is not modified.
func (p *Provider) GetAccounts(ctx context.Context) ([]protocol.Account, error) {
	var res protocol.GetAccountsResult
	if err := p.transport.Call(ctx, protocol.RequestGetAccounts, nil, &res); err != nil {
		return nil, errors.Wrap(err, "failed to get accounts")
	}

	return res.Accounts, nil
}

// Call sends a raw request over the transport once initialized.
func (p *Provider) Call(ctx context.Context, typ protocol.RequestType, payload any, out any) error {
	if err := p.Initialize(ctx); err != nil {
		return err
	}

	return p.transport.Call(ctx, typ, payload, out)
}

// Show reveals the wallet surface.
func (p *Provider) Show() { p.transport.Show() }

// Hide conceals the wallet surface.
func (p *Provider) Hide() { p.transport.Hide() }

// IsConnected reports whether a connection was established and not reset
// since.
func (p *Provider) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.connected
}

// Accounts returns a copy of the account cache.
func (p *Provider) Accounts() []protocol.Account {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]protocol.Account(nil), p.accounts...)
}

// SelectedAccount returns the selected account, if any.
func (p *Provider) SelectedAccount() fn.Option[protocol.Account] {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.selected
}

// LastConnectResult returns a copy of the cached connect result, if any.
func (p *Provider) LastConnectResult() *protocol.ConnectResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastConnect.Clone()
}

// On subscribes handler to provider events named name. The returned
// function unsubscribes.
func (p *Provider) On(name protocol.EventName, handler func(*Event)) func() {
	return p.listeners.Subscribe(name, handler)
}

// Destroy tears down the transport and forgets every listener and all
// session state. The provider cannot be used afterwards.
func (p *Provider) Destroy() {
	p.mu.Lock()
	if p.state == stateDestroyed {
		p.mu.Unlock()
		return
	}
	p.state = stateDestroyed
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	for _, off := range unsubscribe {
		off()
	}
	p.transport.Teardown()
	p.listeners.Clear()
	p.reset()

	p.log.Debug().Msg("Provider destroyed")
}

func (p *Provider) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.connected = false
	p.accounts = nil
	p.selected = fn.None[protocol.Account]()
	p.lastConnect = nil
}

func (p *Provider) onReset(e *protocol.Event) {
	p.log.Info().Str("event", string(e.Event)).Msg("Session reset by wallet")
	p.reset()
	p.listeners.Emit(e.Event, &Event{Name: e.Event})
}

func (p *Provider) onAccountChanged(e *protocol.Event) {
	var data protocol.AccountChangedData
	if err := json.Unmarshal(e.Data, &data); err != nil || data.Account.Address == "" {
		p.log.Debug().Msg("Dropping malformed account_changed event")
		return
	}
	acc := data.Account

	p.mu.Lock()
	p.accounts = protocol.MergeAccount(p.accounts, acc)
	p.selected = fn.Some(acc)
	if p.lastConnect != nil && !slices.ContainsFunc(p.lastConnect.Accounts, acc.SameIdentity) {
		p.lastConnect.Accounts = append(p.lastConnect.Accounts, acc)
	}
	p.mu.Unlock()

	p.listeners.Emit(protocol.EventAccountChanged, &Event{Name: protocol.EventAccountChanged, Account: &acc})
}

func (p *Provider) forward(e *protocol.Event) {
	out := &Event{Name: e.Event}
	if e.Event != protocol.EventConnectStart && len(e.Data) > 0 {
		var wire protocol.Error
		if err := json.Unmarshal(e.Data, &wire); err == nil && wire.Code != "" {
			out.Err = protocol.FromWire(&wire)
		}
	}

	p.listeners.Emit(e.Event, out)
}
