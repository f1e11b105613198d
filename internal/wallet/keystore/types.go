package keystore

import "github.com/pkg/errors"

// KeystoreJSON is the keystore v3 envelope holding the encrypted seed.
//
//nolint:revive // KeystoreJSON is the standard name for the keystore JSON structure
type KeystoreJSON struct {
	Version int    `json:"version"`
	ID      string `json:"id"`
	Crypto  struct {
		Ciphertext   string `json:"ciphertext"`
		CipherParams struct {
			IV string `json:"iv"`
		} `json:"cipherparams"`
		Cipher    string `json:"cipher"`
		KDF       string `json:"kdf"`
		KDFParams struct {
			DKLen int    `json:"dklen"`
			Salt  string `json:"salt"`
			N     int    `json:"n"`
			R     int    `json:"r"`
			P     int    `json:"p"`
		} `json:"kdfparams"`
		MAC string `json:"mac"`
	} `json:"crypto"`
}

// ScryptParams defines scrypt KDF parameters
type ScryptParams struct {
	DKLen int // Derived key length (32 bytes)
	N     int // CPU/memory cost parameter (262144)
	R     int // Block size parameter (8)
	P     int // Parallelization parameter (1)
}

const (
	version    = 3
	cipherName = "aes-128-ctr"
	kdfName    = "scrypt"
)

// Bounds accepted for keystore envelopes. The derived key is split into an
// AES-128 key and a MAC key, so it needs at least 32 bytes.
const (
	minDKLen = 32
	maxDKLen = 64
	maxN     = 1 << 20
	maxR     = 32
	maxP     = 16
)

// Validate reports whether the parameters describe a usable scrypt setup.
func (p *ScryptParams) Validate() error {
	switch {
	case p.DKLen < minDKLen || p.DKLen > maxDKLen:
		return errors.Errorf("dklen %d out of range [%d, %d]", p.DKLen, minDKLen, maxDKLen)
	case p.N <= 1 || p.N > maxN || p.N&(p.N-1) != 0:
		return errors.Errorf("n %d must be a power of two up to %d", p.N, maxN)
	case p.R < 1 || p.R > maxR:
		return errors.Errorf("r %d out of range [1, %d]", p.R, maxR)
	case p.P < 1 || p.P > maxP:
		return errors.Errorf("p %d out of range [1, %d]", p.P, maxP)
	}

	return nil
}

// DefaultScryptParams returns default scrypt parameters for keystore v3
func DefaultScryptParams() *ScryptParams {
	const (
		scryptDKLen = 32     // Derived key length (32 bytes)
		scryptN     = 262144 // CPU/memory cost parameter (2^18)
		scryptR     = 8      // Block size parameter
		scryptP     = 1      // Parallelization parameter
	)

	return &ScryptParams{
		DKLen: scryptDKLen,
		N:     scryptN,
		R:     scryptR,
		P:     scryptP,
	}
}

// LightScryptParams trades KDF strength for speed. Only meant for tests and
// throwaway development keystores.
func LightScryptParams() *ScryptParams {
	return &ScryptParams{
		DKLen: 32,
		N:     4096,
		R:     8,
		P:     1,
	}
}
