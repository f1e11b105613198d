// Package chain adapts the embedded provider to a single chain.
package chain

import (
	"context"
	"encoding/base64"

	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/protocol"
)

// Provider is the part of the embedded provider a chain adapter uses.
type Provider interface {
	Connect(ctx context.Context, metadata *protocol.AppMetadata) (*protocol.ConnectResult, error)
	IsConnected() bool
	Call(ctx context.Context, typ protocol.RequestType, payload any, out any) error
	Show()
	Hide()
}

// Thru is the adapter for Thru accounts. It keeps no state of its own.
type Thru struct {
	provider Provider
}

// NewThru creates a Thru adapter over p.
func NewThru(p Provider) *Thru {
	return &Thru{provider: p}
}

// Connect connects the provider and returns its Thru account.
func (t *Thru) Connect(ctx context.Context, metadata *protocol.AppMetadata) (protocol.Account, error) {
	res, err := t.provider.Connect(ctx, metadata)
	if err != nil {
		return protocol.Account{}, err
	}

	for _, acc := range res.Accounts {
		if acc.AccountType == protocol.AccountTypeThru {
			return acc, nil
		}
	}

	return protocol.Account{}, errors.Wrap(protocol.ErrAddressNotFound, "wallet returned no thru account")
}

// SignTransaction asks the wallet to sign the serialized transaction and
// returns the signature-prefixed transaction. The wallet surface is shown
// for the duration of the request.
func (t *Thru) SignTransaction(ctx context.Context, serialized []byte) ([]byte, error) {
	if !t.provider.IsConnected() {
		return nil, errors.WithStack(protocol.ErrNotConnected)
	}
	if len(serialized) == 0 {
		return nil, errors.Wrap(protocol.ErrInvalidPayload, "transaction is empty")
	}

	t.provider.Show()
	defer t.provider.Hide()

	var res protocol.SignTransactionResult
	payload := protocol.SignTransactionPayload{Transaction: base64.StdEncoding.EncodeToString(serialized)}
	if err := t.provider.Call(ctx, protocol.RequestSignTransaction, payload, &res); err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	signed, err := base64.StdEncoding.DecodeString(res.SignedTransaction)
	if err != nil {
		return nil, errors.Wrapf(protocol.ErrInvalidPayload, "signed transaction is not base64: %v", err)
	}

	return signed, nil
}
