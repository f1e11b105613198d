package seed

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
	"github/chapool/embedded-wallet/internal/protocol"
)

// manager implements seed management with thread-safe access
type manager struct {
	seed []byte
	mu   sync.RWMutex
}

// NewManager creates a new seed Manager
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewManager() Manager {
	return &manager{}
}

// Initialize converts the mnemonic to a seed (BIP39: PBKDF2-SHA512, 2048
// rounds, salt "mnemonic"+password) and takes ownership of it.
func (m *manager) Initialize(mnemonic string, password string) error {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, password)
	if err != nil {
		return errors.Wrap(err, "invalid mnemonic")
	}

	m.Set(seed)

	return nil
}

func (m *manager) Set(seed []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	Wipe(m.seed)
	m.seed = seed
}

func (m *manager) With(fn func(seed []byte) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.seed) == 0 {
		return errors.WithStack(protocol.ErrWalletLocked)
	}

	return fn(m.seed)
}

// IsInitialized checks if seed is initialized
func (m *manager) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.seed) > 0
}

// Clear clears the seed from memory
func (m *manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	Wipe(m.seed)
	m.seed = nil
}

// Wipe overwrites b with zeros in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
