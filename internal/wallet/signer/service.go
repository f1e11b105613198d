package signer

import (
	"context"

	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/util"
	"github/chapool/embedded-wallet/internal/wallet/address"
	"github/chapool/embedded-wallet/internal/wallet/seed"
)

type service struct {
	seedManager    seed.Manager
	addressService address.Service
}

// NewService creates a new signer Service
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(seedManager seed.Manager, addressService address.Service) (Service, error) {
	return &service{
		seedManager:    seedManager,
		addressService: addressService,
	}, nil
}

// SignTransaction signs a serialized transaction in the transaction domain
func (s *service) SignTransaction(ctx context.Context, req *SignRequest) (*SignResponse, error) {
	if len(req.Payload) == 0 {
		return nil, errors.New("payload is empty")
	}

	path := s.addressService.GetBIP44Path(req.Index)
	resp := &SignResponse{Path: path}

	err := s.seedManager.With(func(seed []byte) error {
		keypair, err := s.addressService.DeriveKeypair(ctx, seed, path)
		if err != nil {
			return errors.Wrap(err, "failed to derive private key")
		}

		// Clear private key after use
		defer keypair.Wipe()

		sig, err := SignTransaction(req.Payload, keypair.PublicKey, keypair.PrivateKey)
		if err != nil {
			return errors.Wrap(err, "failed to sign transaction")
		}

		resp.Signature = sig
		resp.PublicKey = keypair.PublicKey

		return nil
	})
	if err != nil {
		return nil, err
	}

	resp.SignedTransaction = make([]byte, 0, SignatureSize+len(req.Payload))
	resp.SignedTransaction = append(resp.SignedTransaction, resp.Signature[:]...)
	resp.SignedTransaction = append(resp.SignedTransaction, req.Payload...)

	util.LogFromContext(ctx).Debug().Uint32("index", req.Index).Int("payload_len", len(req.Payload)).Msg("Signed transaction")

	return resp, nil
}
