package address

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/wallet/seed"
)

// DefaultCoinType is the registered coin type of the Thru chain.
const DefaultCoinType uint32 = 9999

type service struct {
	coinType uint32
}

// NewService creates an address Service deriving under coinType.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(coinType uint32) Service {
	return &service{coinType: coinType}
}

// DeriveAddress derives the account at index and encodes its address
func (s *service) DeriveAddress(ctx context.Context, masterSeed []byte, index uint32) (*Derived, error) {
	path := s.GetBIP44Path(index)

	keypair, err := s.DeriveKeypair(ctx, masterSeed, path)
	if err != nil {
		return nil, err
	}
	defer keypair.Wipe()

	return &Derived{
		Index:     index,
		Path:      path,
		PublicKey: keypair.PublicKey,
		Address:   Encode(keypair.PublicKey),
	}, nil
}

// DeriveKeypair derives the Ed25519 keypair at path
func (s *service) DeriveKeypair(_ context.Context, masterSeed []byte, path string) (*Keypair, error) {
	if len(masterSeed) == 0 {
		return nil, errors.New("seed is empty")
	}

	key, err := deriveKeyFromPath(masterSeed, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive key from path")
	}

	pub, err := PublicKey(key)
	if err != nil {
		seed.Wipe(key)
		return nil, err
	}

	return &Keypair{PublicKey: pub, PrivateKey: key}, nil
}

// GetBIP44Path gets the account path
// Format: m/44'/<coinType>'/<index>'/0'
func (s *service) GetBIP44Path(index uint32) string {
	return fmt.Sprintf("m/44'/%d'/%d'/0'", s.coinType, index)
}
