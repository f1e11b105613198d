package signer

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/protocol"
)

const (
	// SignaturePrefix starts every encoded signature.
	SignaturePrefix = "ts"
	// EncodedSignatureLength is the length of an encoded signature.
	EncodedSignatureLength = 90
)

// EncodeSignature renders sig as "ts" followed by the unpadded base64url
// encoding of the signature and a two byte big endian additive checksum.
func EncodeSignature(sig [SignatureSize]byte) string {
	var buf [SignatureSize + 2]byte
	copy(buf[:], sig[:])
	binary.BigEndian.PutUint16(buf[SignatureSize:], signatureChecksum(sig[:]))

	return SignaturePrefix + base64.RawURLEncoding.EncodeToString(buf[:])
}

// DecodeSignature parses an encoded signature. A corrupted signature fails
// with protocol.ErrChecksumMismatch.
func DecodeSignature(s string) ([SignatureSize]byte, error) {
	var sig [SignatureSize]byte

	if len(s) != EncodedSignatureLength || s[:2] != SignaturePrefix {
		return sig, errors.Wrapf(protocol.ErrInvalidPayload, "signature must be %q followed by %d characters", SignaturePrefix, EncodedSignatureLength-2)
	}

	raw, err := base64.RawURLEncoding.Strict().DecodeString(s[2:])
	if err != nil || len(raw) != SignatureSize+2 {
		return sig, errors.Wrapf(protocol.ErrInvalidPayload, "signature is not base64url: %s", s)
	}

	if binary.BigEndian.Uint16(raw[SignatureSize:]) != signatureChecksum(raw[:SignatureSize]) {
		return sig, errors.Wrapf(protocol.ErrChecksumMismatch, "signature %s", s)
	}

	copy(sig[:], raw)

	return sig, nil
}

func signatureChecksum(b []byte) uint16 {
	var sum uint16
	for _, c := range b {
		sum += uint16(c)
	}

	return sum
}
