package address

import (
	"context"

	"github/chapool/embedded-wallet/internal/wallet/seed"
)

// Service provides account key derivation from the wallet seed.
type Service interface {
	// DeriveAddress derives the account at index and returns its public data
	DeriveAddress(ctx context.Context, seed []byte, index uint32) (*Derived, error)

	// DeriveKeypair derives the keypair at path.
	// WARNING: Keypair.Wipe must be called once the private key is no longer needed
	DeriveKeypair(ctx context.Context, seed []byte, path string) (*Keypair, error)

	// GetBIP44Path gets the account path: m/44'/<coinType>'/<index>'/0'
	GetBIP44Path(index uint32) string
}

// Derived is the public part of a derived account.
type Derived struct {
	Index     uint32
	Path      string
	PublicKey [PublicKeySize]byte
	Address   string
}

// Keypair is a derived Ed25519 keypair. PrivateKey is the 32 byte seed form.
type Keypair struct {
	PublicKey  [PublicKeySize]byte
	PrivateKey []byte
}

// Wipe scrubs the private key in place.
func (k *Keypair) Wipe() {
	if k == nil {
		return
	}
	seed.Wipe(k.PrivateKey)
	k.PrivateKey = nil
}
