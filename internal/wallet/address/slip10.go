package address

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"strconv"
	"strings"

	"filippo.io/edwards25519"
	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/wallet/seed"
)

const (
	// PublicKeySize is the size of an Ed25519 public key.
	PublicKeySize = 32
	// PrivateKeySize is the size of an Ed25519 private key seed.
	PrivateKeySize = 32

	hardenedOffset uint32 = 0x80000000
	masterKeyTag          = "ed25519 seed"
)

// deriveKeyFromPath derives an Ed25519 private key following SLIP-0010.
// Ed25519 only supports hardened derivation, so every path segment must be
// hardened.
func deriveKeyFromPath(masterSeed []byte, path string) ([]byte, error) {
	indices, err := parseBIP44Path(path)
	if err != nil {
		return nil, err
	}

	key, chainCode := hmacSplit([]byte(masterKeyTag), masterSeed)

	for _, index := range indices {
		if index < hardenedOffset {
			seed.Wipe(key)
			seed.Wipe(chainCode)
			return nil, errors.Errorf("segment %d is not hardened", index)
		}

		//nolint:mnd // 0x00 || key || ser32(index)
		data := make([]byte, 0, 1+PrivateKeySize+4)
		data = append(data, 0)
		data = append(data, key...)
		data = binary.BigEndian.AppendUint32(data, index)

		nextKey, nextChain := hmacSplit(chainCode, data)
		seed.Wipe(data)
		seed.Wipe(key)
		seed.Wipe(chainCode)
		key, chainCode = nextKey, nextChain
	}

	seed.Wipe(chainCode)

	return key, nil
}

func hmacSplit(key []byte, data []byte) ([]byte, []byte) {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	sum := mac.Sum(nil)

	return sum[:PrivateKeySize], sum[PrivateKeySize:]
}

// parseBIP44Path parses a BIP44 path string into indices
// Example: "m/44'/9999'/0'/0'" -> [2147483692, 2147493647, 2147483648, 2147483648]
func parseBIP44Path(path string) ([]uint32, error) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] != "m" {
		return nil, errors.Errorf("invalid BIP44 path: %s", path)
	}

	indices := make([]uint32, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := strings.HasSuffix(part, "'")
		part = strings.TrimSuffix(part, "'")

		index, err := strconv.ParseUint(part, 10, 31)
		if err != nil {
			return nil, errors.Errorf("invalid path segment: %s", part)
		}

		value := uint32(index)
		if hardened {
			value += hardenedOffset
		}
		indices = append(indices, value)
	}

	return indices, nil
}

// PublicKey computes the Ed25519 public key of a 32 byte private key seed.
func PublicKey(privateKey []byte) ([PublicKeySize]byte, error) {
	var pub [PublicKeySize]byte

	scalar, _, err := ExpandPrivateKey(privateKey)
	if err != nil {
		return pub, err
	}

	copy(pub[:], new(edwards25519.Point).ScalarBaseMult(scalar).Bytes())

	return pub, nil
}

// ExpandPrivateKey hashes the private key seed into the signing scalar and
// the nonce prefix. The caller must wipe the prefix.
func ExpandPrivateKey(privateKey []byte) (*edwards25519.Scalar, []byte, error) {
	if len(privateKey) != PrivateKeySize {
		return nil, nil, errors.Errorf("private key must be %d bytes, got %d", PrivateKeySize, len(privateKey))
	}

	h := sha512.Sum512(privateKey)
	defer seed.Wipe(h[:32])

	scalar, err := edwards25519.NewScalar().SetBytesWithClamping(h[:32])
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to expand private key")
	}

	prefix := make([]byte, 32)
	copy(prefix, h[32:])
	seed.Wipe(h[32:])

	return scalar, prefix, nil
}
