package signer

import "context"

// Service signs payloads with keys derived from the seed held by the seed
// manager.
type Service interface {
	// SignTransaction signs a serialized transaction with the account at
	// index and returns the 64 byte signature.
	SignTransaction(ctx context.Context, req *SignRequest) (*SignResponse, error)
}

// SignRequest represents a request to sign a serialized transaction
type SignRequest struct {
	Index   uint32 // Account index (m/44'/<coinType>'/<index>'/0')
	Payload []byte // Serialized transaction bytes
}

// SignResponse represents a signed transaction
type SignResponse struct {
	Signature [SignatureSize]byte
	PublicKey [32]byte
	Path      string
	// SignedTransaction is the signature followed by the payload.
	SignedTransaction []byte
}

// Domain separates signatures of different kinds so a signature over one
// cannot be replayed as another.
type Domain uint64

const (
	DomainTransaction Domain = 1
	DomainBlockHeader Domain = 2
	DomainBlock       Domain = 3
	DomainGossip      Domain = 4
)
