package signer

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"

	"filippo.io/edwards25519"
	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/wallet/address"
	"github/chapool/embedded-wallet/internal/wallet/seed"
)

const (
	// SignatureSize is the size of a domain separated Ed25519 signature.
	SignatureSize = 64

	domainBlockSize = 128
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPublicKey = errors.New("invalid public key")
)

func domainBlock(d Domain) []byte {
	block := make([]byte, domainBlockSize)
	binary.BigEndian.PutUint64(block[:8], uint64(d))
	return block
}

// Sign computes an Ed25519 signature over msg where both the nonce and the
// challenge hash are prefixed with the domain block of d.
func Sign(d Domain, msg []byte, pub [32]byte, privateKey []byte) ([SignatureSize]byte, error) {
	var sig [SignatureSize]byte

	scalar, prefix, err := address.ExpandPrivateKey(privateKey)
	if err != nil {
		return sig, err
	}
	defer seed.Wipe(prefix)

	block := domainBlock(d)

	hr := sha512.New()
	hr.Write(block)
	hr.Write(prefix)
	hr.Write(msg)
	r, err := edwards25519.NewScalar().SetUniformBytes(hr.Sum(nil))
	if err != nil {
		return sig, errors.Wrap(err, "failed to compute nonce")
	}
	rPoint := new(edwards25519.Point).ScalarBaseMult(r).Bytes()

	k, err := challenge(block, rPoint, pub[:], msg)
	if err != nil {
		return sig, err
	}

	s := edwards25519.NewScalar().MultiplyAdd(k, scalar, r)

	copy(sig[:32], rPoint)
	copy(sig[32:], s.Bytes())

	return sig, nil
}

// Verify checks a signature produced by Sign under the same domain.
func Verify(d Domain, msg []byte, sig [SignatureSize]byte, pub [32]byte) error {
	rBytes := sig[:32]

	rPoint, err := new(edwards25519.Point).SetBytes(rBytes)
	if err != nil || isSmallOrder(rPoint) {
		return ErrInvalidSignature
	}

	s, err := edwards25519.NewScalar().SetCanonicalBytes(sig[32:])
	if err != nil {
		return ErrInvalidSignature
	}

	aPoint, err := new(edwards25519.Point).SetBytes(pub[:])
	if err != nil || isSmallOrder(aPoint) {
		return ErrInvalidPublicKey
	}

	k, err := challenge(domainBlock(d), rBytes, pub[:], msg)
	if err != nil {
		return err
	}

	minusA := new(edwards25519.Point).Negate(aPoint)
	check := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(k, minusA, s)

	if !bytes.Equal(check.Bytes(), rBytes) {
		return ErrInvalidSignature
	}

	return nil
}

// SignTransaction signs msg in the transaction domain.
func SignTransaction(msg []byte, pub [32]byte, privateKey []byte) ([SignatureSize]byte, error) {
	return Sign(DomainTransaction, msg, pub, privateKey)
}

// VerifyTransaction verifies a transaction domain signature.
func VerifyTransaction(msg []byte, sig [SignatureSize]byte, pub [32]byte) error {
	return Verify(DomainTransaction, msg, sig, pub)
}

func challenge(block, rPoint, pub, msg []byte) (*edwards25519.Scalar, error) {
	h := sha512.New()
	h.Write(block)
	h.Write(rPoint)
	h.Write(pub)
	h.Write(msg)

	k, err := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute challenge")
	}

	return k, nil
}

func isSmallOrder(p *edwards25519.Point) bool {
	return new(edwards25519.Point).MultByCofactor(p).Equal(edwards25519.NewIdentityPoint()) == 1
}
