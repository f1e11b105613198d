package wallet

import (
	"encoding/base64"

	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/wallet/address"
	"github/chapool/embedded-wallet/internal/wallet/signer"
)

// VerifySignedTransaction checks that signedTransaction, the base64 of a
// 64 byte signature followed by the payload, carries a valid transaction
// signature by the account at addr. It returns the payload.
func VerifySignedTransaction(signedTransaction string, addr string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(signedTransaction)
	if err != nil {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "signed transaction is not base64: %v", err)
	}
	if len(raw) <= signer.SignatureSize {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "signed transaction too short: %d bytes", len(raw))
	}

	pub, err := address.Decode(addr)
	if err != nil {
		return nil, err
	}

	var sig [signer.SignatureSize]byte
	copy(sig[:], raw[:signer.SignatureSize])
	payload := raw[signer.SignatureSize:]

	if err := signer.VerifyTransaction(payload, sig, pub); err != nil {
		return nil, errors.Wrap(err, "signature verification failed")
	}

	return payload, nil
}
