package wallet_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/wallet"
)

func TestAccountBook(t *testing.T) {
	ctx := t.Context()
	svc := wallet.NewService()

	assert.Equal(t, uint32(0), svc.NextIndex(ctx))

	first, err := svc.AddAccount(ctx, &wallet.Account{Index: 0, Address: "ta-first"})
	require.NoError(t, err)
	assert.Equal(t, "Account 1", first.Label)
	assert.False(t, first.CreatedAt.IsZero())

	_, err = svc.AddAccount(ctx, &wallet.Account{Index: 2, Address: "ta-third", Label: "Savings"})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), svc.NextIndex(ctx))

	renamed, err := svc.AddAccount(ctx, &wallet.Account{Index: 0, Address: "ta-first", Label: "Main"})
	require.NoError(t, err)
	assert.Equal(t, "Main", renamed.Label)

	_, err = svc.AddAccount(ctx, &wallet.Account{Index: 0, Address: "ta-other"})
	assert.Error(t, err)

	list := svc.ListAccounts(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "ta-first", list[0].Address)
	assert.Equal(t, "ta-third", list[1].Address)

	// Returned accounts are copies.
	list[0].Label = "mutated"
	got, err := svc.GetAccount(ctx, "ta-first")
	require.NoError(t, err)
	assert.Equal(t, "Main", got.Label)

	_, err = svc.GetAccount(ctx, "ta-missing")
	assert.ErrorIs(t, err, protocol.ErrAccountNotFound)

	converted := wallet.AccountsToProtocol(svc.ListAccounts(ctx))
	assert.Equal(t, protocol.Account{AccountType: protocol.AccountTypeThru, Address: "ta-first", Label: "Main"}, converted[0])
}

func TestGrants(t *testing.T) {
	ctx := t.Context()
	svc := wallet.NewService()
	_, err := svc.AddAccount(ctx, &wallet.Account{Index: 0, Address: "ta-a"})
	require.NoError(t, err)
	_, err = svc.AddAccount(ctx, &wallet.Account{Index: 1, Address: "ta-b"})
	require.NoError(t, err)

	const origin = "https://dapp.example"

	_, ok := svc.GetGrant(ctx, origin)
	assert.False(t, ok)

	_, err = svc.SelectAccount(ctx, origin, "ta-a")
	assert.ErrorIs(t, err, protocol.ErrNotConnected)

	_, err = svc.Grant(ctx, origin, "Dapp", []string{"ta-missing"})
	assert.ErrorIs(t, err, protocol.ErrAccountNotFound)

	grant, err := svc.Grant(ctx, origin, "Dapp", []string{"ta-a"})
	require.NoError(t, err)
	assert.Equal(t, "ta-a", grant.Selected)

	acc, err := svc.SelectAccount(ctx, origin, "ta-b")
	require.NoError(t, err)
	assert.Equal(t, "ta-b", acc.Address)

	grant, ok = svc.GetGrant(ctx, origin)
	require.True(t, ok)
	assert.Equal(t, []string{"ta-a", "ta-b"}, grant.Addresses)
	assert.Equal(t, "ta-b", grant.Selected)

	_, err = svc.SelectAccount(ctx, origin, "ta-missing")
	assert.ErrorIs(t, err, protocol.ErrAccountNotFound)

	assert.Equal(t, []string{origin}, svc.RevokeAll(ctx))
	_, ok = svc.GetGrant(ctx, origin)
	assert.False(t, ok)
}
