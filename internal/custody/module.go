// Package custody is the key custody module that runs inside the worker. It
// exclusively owns the decrypted seed, derives accounts, signs payloads and
// locks itself after a period of inactivity.
package custody

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github/chapool/embedded-wallet/internal/metrics"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/wallet/address"
	"github/chapool/embedded-wallet/internal/wallet/keystore"
	"github/chapool/embedded-wallet/internal/wallet/seed"
	"github/chapool/embedded-wallet/internal/wallet/signer"
)

// DefaultAutoLockTimeout is the inactivity window after which the seed is
// scrubbed.
const DefaultAutoLockTimeout = 15 * time.Minute

// DecryptFunc opens the encrypted seed envelope. It must fail with
// protocol.ErrInvalidPassword for a wrong password.
type DecryptFunc func(encrypted []byte, password string) ([]byte, error)

// Config configures a Module.
type Config struct {
	Clock           clock.Clock
	AutoLockTimeout time.Duration
	CoinType        uint32

	// Decrypt defaults to keystore.Decrypt.
	Decrypt DecryptFunc

	// OnAutoLock is called after the inactivity timer locked the module.
	OnAutoLock func()

	Metrics *metrics.Service
}

// Module holds the custody state: a seed when unlocked and a single
// inactivity timer.
type Module struct {
	cfg       Config
	log       zerolog.Logger
	seeds     seed.Manager
	addresses address.Service
	signer    signer.Service

	mu         sync.Mutex
	generation uint64
	stopTimer  chan struct{}
}

// New creates a locked module.
func New(cfg Config) (*Module, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.AutoLockTimeout <= 0 {
		cfg.AutoLockTimeout = DefaultAutoLockTimeout
	}
	if cfg.CoinType == 0 {
		cfg.CoinType = address.DefaultCoinType
	}
	if cfg.Decrypt == nil {
		cfg.Decrypt = keystore.Decrypt
	}

	seeds := seed.NewManager()
	addresses := address.NewService(cfg.CoinType)

	signerService, err := signer.NewService(seeds, addresses)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create signer")
	}

	return &Module{
		cfg:       cfg,
		log:       log.With().Str("component", "custody").Logger(),
		seeds:     seeds,
		addresses: addresses,
		signer:    signerService,
	}, nil
}

// Unlock decrypts the seed envelope and takes ownership of the seed. On
// failure the module is left as it was.
func (m *Module) Unlock(_ context.Context, encrypted []byte, password string) error {
	seedBytes, err := m.cfg.Decrypt(encrypted, password)
	if err != nil {
		if errors.Is(err, protocol.ErrInvalidPassword) {
			return err
		}
		return errors.Wrapf(protocol.ErrInvalidPassword, "failed to decrypt seed: %v", err)
	}
	if len(seedBytes) == 0 {
		return errors.Wrap(protocol.ErrInvalidPassword, "decrypted seed is empty")
	}

	m.mu.Lock()
	m.seeds.Set(seedBytes)
	m.touchLocked()
	m.mu.Unlock()

	m.log.Info().Msg("Custody unlocked")

	return nil
}

// Lock scrubs the seed and cancels the inactivity timer. Locking a locked
// module is a no-op.
func (m *Module) Lock(_ context.Context) {
	if m.lock() {
		m.cfg.Metrics.ObserveLock(metrics.LockReasonManual)
		m.log.Info().Msg("Custody locked")
	}
}

func (m *Module) lock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelTimerLocked()

	wasUnlocked := m.seeds.IsInitialized()
	m.seeds.Clear()

	return wasUnlocked
}

// IsUnlocked reports whether the module holds a seed.
func (m *Module) IsUnlocked() bool {
	return m.seeds.IsInitialized()
}

// DeriveAccount derives the account at index.
func (m *Module) DeriveAccount(ctx context.Context, index uint32) (*protocol.DerivedAccount, error) {
	derived, err := m.derive(ctx, index)
	if err != nil {
		return nil, err
	}

	return &protocol.DerivedAccount{
		Address:   derived.Address,
		PublicKey: hex.EncodeToString(derived.PublicKey[:]),
		Path:      derived.Path,
	}, nil
}

// GetPublicKey returns the public key and address of the account at index.
func (m *Module) GetPublicKey(ctx context.Context, index uint32) (*protocol.PublicKeyResult, error) {
	derived, err := m.derive(ctx, index)
	if err != nil {
		return nil, err
	}

	return &protocol.PublicKeyResult{
		PublicKey: hex.EncodeToString(derived.PublicKey[:]),
		Address:   derived.Address,
	}, nil
}

func (m *Module) derive(ctx context.Context, index uint32) (*address.Derived, error) {
	if err := m.activity(); err != nil {
		return nil, err
	}

	var derived *address.Derived
	err := m.seeds.With(func(seed []byte) error {
		d, err := m.addresses.DeriveAddress(ctx, seed, index)
		if err != nil {
			return errors.Wrapf(err, "failed to derive account %d", index)
		}
		derived = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	return derived, nil
}

// SignSerializedTransaction signs the base64 serialized transaction with the
// account at index and returns base64(signature || payload).
func (m *Module) SignSerializedTransaction(ctx context.Context, index uint32, serialized string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil {
		return "", errors.Wrapf(protocol.ErrInvalidPayload, "transaction is not base64: %v", err)
	}
	if len(payload) == 0 {
		return "", errors.Wrap(protocol.ErrInvalidPayload, "transaction is empty")
	}

	if err := m.activity(); err != nil {
		return "", err
	}

	resp, err := m.signer.SignTransaction(ctx, &signer.SignRequest{Index: index, Payload: payload})
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(resp.SignedTransaction), nil
}

// activity fails closed when locked and otherwise restarts the inactivity
// timer.
func (m *Module) activity() error {
	if !m.seeds.IsInitialized() {
		return errors.WithStack(protocol.ErrWalletLocked)
	}

	m.touch()

	return nil
}

// touch cancels the current inactivity timer and schedules a new one.
func (m *Module) touch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touchLocked()
}

// touchLocked is touch with m.mu held. A timer that fires before the new
// generation is installed finds a stale generation and does nothing.
func (m *Module) touchLocked() {
	m.cancelTimerLocked()

	m.generation++
	gen := m.generation
	stop := make(chan struct{})
	m.stopTimer = stop

	deadline := m.cfg.Clock.TickAfter(m.cfg.AutoLockTimeout)
	go func() {
		select {
		case <-deadline:
			m.expire(gen)
		case <-stop:
		}
	}()
}

func (m *Module) cancelTimerLocked() {
	if m.stopTimer != nil {
		close(m.stopTimer)
		m.stopTimer = nil
	}
}

func (m *Module) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || !m.seeds.IsInitialized() {
		m.mu.Unlock()
		return
	}
	m.stopTimer = nil
	m.seeds.Clear()
	m.mu.Unlock()

	m.cfg.Metrics.ObserveLock(metrics.LockReasonAuto)
	m.log.Info().Dur("timeout", m.cfg.AutoLockTimeout).Msg("Custody auto-locked after inactivity")

	if m.cfg.OnAutoLock != nil {
		m.cfg.OnAutoLock()
	}
}
