// Package iframe is the wallet frame application. It answers host requests
// from the account book and the custody worker, and tells connected hosts
// when the wallet locks or switches accounts.
package iframe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github/chapool/embedded-wallet/internal/bus"
	"github/chapool/embedded-wallet/internal/frame"
	"github/chapool/embedded-wallet/internal/metrics"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/util"
	"github/chapool/embedded-wallet/internal/wallet"
	"github/chapool/embedded-wallet/internal/wallet/keystore"
)

const DefaultWalletName = "Thru Wallet"

// Custody is the frame's view of the custody worker.
type Custody interface {
	Unlock(ctx context.Context, encrypted json.RawMessage, password string) error
	Lock(ctx context.Context) error
	IsUnlocked(ctx context.Context) (bool, error)
	DeriveAccount(ctx context.Context, index uint32) (*protocol.DerivedAccount, error)
	SignSerializedTransaction(ctx context.Context, index uint32, serialized string) (string, error)
	SubscribeEvents(ch chan<- protocol.WorkerEvent) event.Subscription
}

// Config configures an App.
type Config struct {
	WalletName string

	Wallet   wallet.Service
	Custody  Custody
	Keystore keystore.Service
	Approver Approver

	// Password unlocks the keystore when a request needs the seed and the
	// worker is locked. Without it such requests fail with
	// protocol.ErrWalletLocked.
	Password wallet.PasswordFunc

	Metrics *metrics.Service
}

// App serves host requests for every attached frame.
type App struct {
	cfg Config
	log zerolog.Logger

	unlockMu sync.Mutex

	// closed is cancelled by Close and detaches every frame.
	closed context.Context
	close  context.CancelFunc

	mu         sync.Mutex
	responders map[*frame.Responder]struct{}
}

// New creates an App.
func New(cfg Config) (*App, error) {
	if cfg.Wallet == nil || cfg.Custody == nil || cfg.Keystore == nil {
		return nil, errors.New("frame app requires a wallet, a custody client and a keystore")
	}
	if cfg.Approver == nil {
		cfg.Approver = AutoApprover{}
	}
	if cfg.WalletName == "" {
		cfg.WalletName = DefaultWalletName
	}

	closed, cancel := context.WithCancel(context.Background())

	return &App{
		cfg:        cfg,
		log:        log.With().Str("component", "frame_app").Logger(),
		closed:     closed,
		close:      cancel,
		responders: make(map[*frame.Responder]struct{}),
	}, nil
}

// Close detaches every frame. Mount returns for each of them.
func (a *App) Close() {
	a.close()
}

// Mount serves one attached host on port until ctx is done, the port
// closes or the app is closed. The port is closed on return.
func (a *App) Mount(ctx context.Context, port bus.Port) {
	defer func() { _ = port.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(a.closed, cancel)
	defer stop()

	r, err := frame.NewResponder(port, a, frame.ResponderConfig{Metrics: a.cfg.Metrics})
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to attach frame")
		return
	}

	a.mu.Lock()
	a.responders[r] = struct{}{}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.responders, r)
		a.mu.Unlock()
	}()

	log := a.log.With().Str("parent_origin", r.ParentOrigin()).Logger()
	log.Debug().Msg("Frame attached")

	if err := r.Serve(util.WithLogger(ctx, log)); err != nil {
		log.Warn().Err(err).Msg("Frame stopped")
		return
	}

	log.Debug().Msg("Frame detached")
}

// Run relays custody worker events until ctx is done.
func (a *App) Run(ctx context.Context) error {
	events := make(chan protocol.WorkerEvent, 4)
	sub := a.cfg.Custody.SubscribeEvents(events)
	defer sub.Unsubscribe()

	for {
		select {
		case ev := <-events:
			if ev.Name == protocol.WorkerEventAutoLock {
				a.log.Info().Msg("Wallet auto-locked")
				a.locked(ctx)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

// HandleRequest implements frame.Handler.
func (a *App) HandleRequest(ctx context.Context, req *protocol.Request) (any, error) {
	switch req.Type {
	case protocol.RequestConnect:
		var p protocol.ConnectPayload
		if len(req.Payload) > 0 {
			if err := req.DecodePayload(&p); err != nil {
				return nil, err
			}
		}
		return a.connect(ctx, req.Origin, p.Metadata)

	case protocol.RequestDisconnect:
		a.cfg.Wallet.Revoke(ctx, req.Origin)
		util.LogFromContext(ctx).Info().Str("origin", req.Origin).Msg("App disconnected")
		return struct{}{}, nil

	case protocol.RequestGetAccounts:
		return protocol.GetAccountsResult{Accounts: a.grantedAccounts(ctx, req.Origin)}, nil

	case protocol.RequestSelectAccount:
		var p protocol.SelectAccountPayload
		if err := req.DecodePayload(&p); err != nil {
			return nil, err
		}
		acc, err := a.cfg.Wallet.SelectAccount(ctx, req.Origin, p.Address)
		if err != nil {
			return nil, err
		}
		return protocol.SelectAccountResult{Account: acc.ToProtocol()}, nil

	case protocol.RequestSignTransaction:
		var p protocol.SignTransactionPayload
		if err := req.DecodePayload(&p); err != nil {
			return nil, err
		}
		return a.signTransaction(ctx, req.Origin, p.Transaction)

	default:
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "unsupported request %q", req.Type)
	}
}

func (a *App) connect(ctx context.Context, origin string, metadata *protocol.AppMetadata) (*protocol.ConnectResult, error) {
	a.broadcastTo(origin, protocol.EventConnectStart, nil)

	res, err := a.authorize(ctx, origin, metadata)
	if err != nil {
		a.broadcastTo(origin, protocol.EventConnectError, protocol.ToWire(err))
		return nil, err
	}

	return res, nil
}

func (a *App) authorize(ctx context.Context, origin string, metadata *protocol.AppMetadata) (*protocol.ConnectResult, error) {
	if err := a.ensureUnlocked(ctx); err != nil {
		return nil, err
	}

	if _, ok := a.cfg.Wallet.GetGrant(ctx, origin); ok {
		return &protocol.ConnectResult{
			WalletName: a.cfg.WalletName,
			Accounts:   a.grantedAccounts(ctx, origin),
			Metadata:   metadata,
		}, nil
	}

	accounts := a.cfg.Wallet.ListAccounts(ctx)
	if len(accounts) == 0 {
		acc, err := a.CreateAccount(ctx, "")
		if err != nil {
			return nil, err
		}
		accounts = []*wallet.Account{acc}
	}

	offered := wallet.AccountsToProtocol(accounts)
	if err := a.cfg.Approver.ApproveConnect(ctx, origin, metadata, offered); err != nil {
		return nil, err
	}

	addresses := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		addresses = append(addresses, acc.Address)
	}

	appName := ""
	if metadata != nil {
		appName = metadata.AppName
	}
	if _, err := a.cfg.Wallet.Grant(ctx, origin, appName, addresses); err != nil {
		return nil, err
	}

	return &protocol.ConnectResult{
		WalletName: a.cfg.WalletName,
		Accounts:   offered,
		Metadata:   metadata,
	}, nil
}

// grantedAccounts lists the accounts granted to origin with the selected
// one first.
func (a *App) grantedAccounts(ctx context.Context, origin string) []protocol.Account {
	grant, ok := a.cfg.Wallet.GetGrant(ctx, origin)
	if !ok {
		return []protocol.Account{}
	}

	out := make([]protocol.Account, 0, len(grant.Addresses))
	if acc, err := a.cfg.Wallet.GetAccount(ctx, grant.Selected); err == nil {
		out = append(out, acc.ToProtocol())
	}
	for _, addr := range grant.Addresses {
		if addr == grant.Selected {
			continue
		}
		if acc, err := a.cfg.Wallet.GetAccount(ctx, addr); err == nil {
			out = append(out, acc.ToProtocol())
		}
	}

	return out
}

func (a *App) signTransaction(ctx context.Context, origin string, transaction string) (*protocol.SignTransactionResult, error) {
	grant, ok := a.cfg.Wallet.GetGrant(ctx, origin)
	if !ok {
		return nil, errors.Wrapf(protocol.ErrNotConnected, "%s is not connected", origin)
	}

	payload, err := base64.StdEncoding.DecodeString(transaction)
	if err != nil {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "transaction is not base64: %v", err)
	}
	if len(payload) == 0 {
		return nil, errors.Wrap(protocol.ErrInvalidPayload, "transaction is empty")
	}

	acc, err := a.cfg.Wallet.GetAccount(ctx, grant.Selected)
	if err != nil {
		return nil, err
	}

	if err := a.ensureUnlocked(ctx); err != nil {
		return nil, err
	}

	if err := a.cfg.Approver.ApproveSign(ctx, origin, acc.ToProtocol(), payload); err != nil {
		return nil, err
	}

	signed, err := a.cfg.Custody.SignSerializedTransaction(ctx, acc.Index, transaction)
	if err != nil {
		return nil, err
	}

	util.LogFromContext(ctx).Info().
		Str("origin", origin).
		Str("address", acc.Address).
		Int("payload_bytes", len(payload)).
		Msg("Signed transaction")

	return &protocol.SignTransactionResult{SignedTransaction: signed}, nil
}

// Unlock opens the keystore with password inside the custody worker.
func (a *App) Unlock(ctx context.Context, password string) error {
	ks, err := a.cfg.Keystore.GetKeystore(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read keystore")
	}

	raw, err := json.Marshal(ks)
	if err != nil {
		return errors.Wrap(err, "failed to encode keystore")
	}

	if err := a.cfg.Custody.Unlock(ctx, raw, password); err != nil {
		return err
	}

	a.log.Info().Msg("Wallet unlocked")

	return nil
}

func (a *App) ensureUnlocked(ctx context.Context) error {
	a.unlockMu.Lock()
	defer a.unlockMu.Unlock()

	unlocked, err := a.cfg.Custody.IsUnlocked(ctx)
	if err != nil {
		return err
	}
	if unlocked {
		return nil
	}
	if a.cfg.Password == nil {
		return errors.WithStack(protocol.ErrWalletLocked)
	}

	pw, err := a.cfg.Password("Enter keystore password: ", false)
	if err != nil {
		return errors.Wrap(protocol.ErrWalletLocked, err.Error())
	}

	return a.Unlock(ctx, pw)
}

// CreateAccount derives the next unused account and adds it to the book.
// An empty label gets the default "Account N".
func (a *App) CreateAccount(ctx context.Context, label string) (*wallet.Account, error) {
	index := a.cfg.Wallet.NextIndex(ctx)

	derived, err := a.cfg.Custody.DeriveAccount(ctx, index)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to derive account %d", index)
	}

	return a.cfg.Wallet.AddAccount(ctx, &wallet.Account{
		Index:          index,
		Label:          label,
		Address:        derived.Address,
		PublicKey:      derived.PublicKey,
		DerivationPath: derived.Path,
		CreatedAt:      time.Now(),
	})
}

// SwitchAccount selects address for origin and tells its host.
func (a *App) SwitchAccount(ctx context.Context, origin string, address string) (*wallet.Account, error) {
	acc, err := a.cfg.Wallet.SelectAccount(ctx, origin, address)
	if err != nil {
		return nil, err
	}

	a.broadcastTo(origin, protocol.EventAccountChanged, protocol.AccountChangedData{Account: acc.ToProtocol()})

	return acc, nil
}

// Lock locks the custody worker and drops every connection.
func (a *App) Lock(ctx context.Context) error {
	err := a.cfg.Custody.Lock(ctx)
	a.locked(ctx)

	if err != nil {
		return errors.Wrap(err, "failed to lock custody worker")
	}

	return nil
}

func (a *App) locked(ctx context.Context) {
	origins := a.cfg.Wallet.RevokeAll(ctx)
	a.log.Debug().Int("revoked", len(origins)).Msg("Revoked grants on lock")

	a.broadcastTo("", protocol.EventLock, nil)
}

// broadcastTo sends an event to every frame whose parent is origin, or to
// all frames when origin is empty.
func (a *App) broadcastTo(origin string, name protocol.EventName, data any) {
	a.mu.Lock()
	targets := make([]*frame.Responder, 0, len(a.responders))
	for r := range a.responders {
		if origin == "" || r.ParentOrigin() == origin {
			targets = append(targets, r)
		}
	}
	a.mu.Unlock()

	for _, r := range targets {
		if err := r.Broadcast(name, data); err != nil {
			a.log.Debug().Err(err).Str("event", string(name)).Msg("Failed to broadcast event")
		}
	}
}
