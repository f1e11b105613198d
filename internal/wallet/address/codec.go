package address

import (
	"encoding/base64"

	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/protocol"
)

const (
	// Prefix starts every encoded account address.
	Prefix = "ta"
	// EncodedLength is the length of an encoded address.
	EncodedLength = 46
)

// Encode renders a public key as "ta" followed by the unpadded base64url
// encoding of the key and a one byte additive checksum.
func Encode(pub [PublicKeySize]byte) string {
	var buf [PublicKeySize + 1]byte
	copy(buf[:], pub[:])
	buf[PublicKeySize] = checksum(pub[:])

	return Prefix + base64.RawURLEncoding.EncodeToString(buf[:])
}

// Decode parses an encoded address back into its public key. A corrupted
// address fails with protocol.ErrChecksumMismatch.
func Decode(s string) ([PublicKeySize]byte, error) {
	var pub [PublicKeySize]byte

	if len(s) != EncodedLength {
		return pub, errors.Wrapf(protocol.ErrInvalidPayload, "address must be %d characters, got %d", EncodedLength, len(s))
	}
	if s[:2] != Prefix {
		return pub, errors.Wrapf(protocol.ErrInvalidPayload, "address must start with %q", Prefix)
	}

	raw, err := base64.RawURLEncoding.Strict().DecodeString(s[2:])
	if err != nil || len(raw) != PublicKeySize+1 {
		return pub, errors.Wrapf(protocol.ErrInvalidPayload, "address is not base64url: %s", s)
	}

	if checksum(raw[:PublicKeySize]) != raw[PublicKeySize] {
		return pub, errors.Wrapf(protocol.ErrChecksumMismatch, "address %s", s)
	}

	copy(pub[:], raw)

	return pub, nil
}

// IsValid reports whether s decodes to a public key.
func IsValid(s string) bool {
	_, err := Decode(s)
	return err == nil
}

func checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}

	return sum
}
