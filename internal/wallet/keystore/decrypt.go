package keystore

import (
	"crypto/aes"
	"crypto/subtle"
	"encoding/hex"

	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/wallet/seed"
	"golang.org/x/crypto/scrypt"
)

// decryptSeed decrypts a seed from the keystore v3 format. A wrong password
// is reported as protocol.ErrInvalidPassword.
func decryptSeed(keystoreJSON *KeystoreJSON, password string) ([]byte, error) {
	if keystoreJSON.Version != version || keystoreJSON.Crypto.Cipher != cipherName || keystoreJSON.Crypto.KDF != kdfName {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "unsupported keystore v%d %s/%s",
			keystoreJSON.Version, keystoreJSON.Crypto.Cipher, keystoreJSON.Crypto.KDF)
	}

	salt, err := hex.DecodeString(keystoreJSON.Crypto.KDFParams.Salt)
	if err != nil {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "failed to decode salt: %v", err)
	}

	//nolint:varnamelen // iv is a common abbreviation for initialization vector
	iv, err := hex.DecodeString(keystoreJSON.Crypto.CipherParams.IV)
	if err != nil {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "failed to decode IV: %v", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "IV is %d bytes, want %d", len(iv), aes.BlockSize)
	}

	ciphertext, err := hex.DecodeString(keystoreJSON.Crypto.Ciphertext)
	if err != nil {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "failed to decode ciphertext: %v", err)
	}

	expectedMAC, err := hex.DecodeString(keystoreJSON.Crypto.MAC)
	if err != nil {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "failed to decode MAC: %v", err)
	}

	params := keystoreJSON.Crypto.KDFParams
	if err := (&ScryptParams{DKLen: params.DKLen, N: params.N, R: params.R, P: params.P}).Validate(); err != nil {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "invalid kdf params: %v", err)
	}

	derivedKey, err := scrypt.Key([]byte(password), salt, params.N, params.R, params.P, params.DKLen)
	if err != nil {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "failed to derive key: %v", err)
	}
	defer seed.Wipe(derivedKey)

	mac := calculateMAC(derivedKey[16:32], ciphertext)
	if subtle.ConstantTimeCompare(mac, expectedMAC) != 1 {
		return nil, errors.Wrap(protocol.ErrInvalidPassword, "MAC mismatch")
	}

	plain, err := xorAES128CTR(derivedKey[:16], iv, ciphertext)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt seed")
	}

	return plain, nil
}
