package keystore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/util"
)

// Service provides keystore encryption and decryption of the wallet seed
// stored in a single keystore file.
type Service interface {
	// CreateKeystore encrypts seed and writes the keystore file. It refuses
	// to overwrite an existing keystore.
	CreateKeystore(ctx context.Context, seed []byte, password string) (*KeystoreJSON, error)

	// DecryptSeed decrypts the seed held by keystore.
	DecryptSeed(ctx context.Context, keystore *KeystoreJSON, password string) ([]byte, error)

	// GetKeystore reads the keystore file.
	GetKeystore(ctx context.Context) (*KeystoreJSON, error)

	// Exists checks if the keystore file exists
	Exists(ctx context.Context) (bool, error)
}

type service struct {
	path   string
	params *ScryptParams
}

// NewService creates a keystore Service backed by the file at path. A nil
// params selects DefaultScryptParams.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(path string, params *ScryptParams) (Service, error) {
	if path == "" {
		return nil, errors.New("keystore path is empty")
	}
	if params == nil {
		params = DefaultScryptParams()
	}

	return &service{
		path:   path,
		params: params,
	}, nil
}

// CreateKeystore encrypts seed and writes the keystore file
func (s *service) CreateKeystore(ctx context.Context, seed []byte, password string) (*KeystoreJSON, error) {
	log := util.LogFromContext(ctx)

	exists, err := s.Exists(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check keystore existence")
	}
	if exists {
		return nil, errors.Errorf("keystore already exists at %s", s.path)
	}

	keystoreJSON, err := Encrypt(seed, password, s.params)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encrypt seed")
		return nil, err
	}

	data, err := json.MarshalIndent(keystoreJSON, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal keystore JSON")
	}

	//nolint:mnd // owner only
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create keystore directory")
	}
	//nolint:mnd // owner only
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("Failed to write keystore")
		return nil, errors.Wrap(err, "failed to write keystore")
	}

	log.Info().Str("path", s.path).Str("keystore_id", keystoreJSON.ID).Msg("Keystore created")

	return keystoreJSON, nil
}

// DecryptSeed decrypts the seed from keystore
func (s *service) DecryptSeed(ctx context.Context, keystore *KeystoreJSON, password string) ([]byte, error) {
	seed, err := decryptSeed(keystore, password)
	if err != nil {
		util.LogFromContext(ctx).Debug().Err(err).Msg("Failed to decrypt seed")
		return nil, err
	}

	return seed, nil
}

// GetKeystore reads the keystore file. A missing file is reported with an
// error matching os.ErrNotExist.
func (s *service) GetKeystore(_ context.Context) (*KeystoreJSON, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read keystore")
	}

	var keystoreJSON KeystoreJSON
	if err := json.Unmarshal(data, &keystoreJSON); err != nil {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "failed to unmarshal keystore JSON: %v", err)
	}

	return &keystoreJSON, nil
}

// Exists checks if the keystore file exists
func (s *service) Exists(_ context.Context) (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, errors.Wrap(err, "failed to stat keystore")
}

// Encrypt wraps seed in a keystore envelope.
func Encrypt(seed []byte, password string, params *ScryptParams) (*KeystoreJSON, error) {
	if len(seed) == 0 {
		return nil, errors.New("seed is empty")
	}
	if params == nil {
		params = DefaultScryptParams()
	}

	keystoreJSON, err := encryptSeed(seed, password, params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt seed")
	}

	return keystoreJSON, nil
}

// Decrypt opens an encoded keystore envelope and returns the seed. The
// caller owns the returned buffer and must scrub it.
func Decrypt(encrypted []byte, password string) ([]byte, error) {
	var keystoreJSON KeystoreJSON
	if err := json.Unmarshal(encrypted, &keystoreJSON); err != nil {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "failed to unmarshal keystore JSON: %v", err)
	}

	return decryptSeed(&keystoreJSON, password)
}
