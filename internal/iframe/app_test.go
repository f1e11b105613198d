package iframe_test

import (
	"encoding/base64"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/custody"
	"github/chapool/embedded-wallet/internal/iframe"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/provider"
	"github/chapool/embedded-wallet/internal/test"
	"github/chapool/embedded-wallet/internal/wallet"
)

func awaitEvent(t *testing.T, ch <-chan *provider.Event) *provider.Event {
	t.Helper()

	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
		return nil
	}
}

func subscribe(s *test.Stack, name protocol.EventName) <-chan *provider.Event {
	ch := make(chan *provider.Event, 8)
	s.Provider.On(name, func(e *provider.Event) { ch <- e })

	return ch
}

func TestConnectAndSign(t *testing.T) {
	s := test.NewStack(t, test.StackOptions{})
	ctx := t.Context()

	starts := subscribe(s, protocol.EventConnectStart)
	connects := subscribe(s, protocol.EventConnect)

	acc, err := s.Thru.Connect(ctx, &protocol.AppMetadata{AppName: "Dapp"})
	require.NoError(t, err)
	assert.Equal(t, protocol.AccountTypeThru, acc.AccountType)
	assert.Equal(t, "Account 1", acc.Label)

	awaitEvent(t, starts)
	connected := awaitEvent(t, connects)
	require.NotNil(t, connected.Result)
	assert.Equal(t, iframe.DefaultWalletName, connected.Result.WalletName)

	grant, ok := s.Wallet.GetGrant(ctx, test.HostOrigin)
	require.True(t, ok)
	assert.Equal(t, acc.Address, grant.Selected)

	payload := []byte("transfer 10 to someone")
	signed, err := s.Thru.SignTransaction(ctx, payload)
	require.NoError(t, err)

	got, err := wallet.VerifySignedTransaction(base64.StdEncoding.EncodeToString(signed), acc.Address)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.False(t, s.Channel.Visible())
}

func TestSignRequiresConnection(t *testing.T) {
	s := test.NewStack(t, test.StackOptions{})
	ctx := t.Context()

	payload := protocol.SignTransactionPayload{Transaction: base64.StdEncoding.EncodeToString([]byte("tx"))}
	err := s.Provider.Call(ctx, protocol.RequestSignTransaction, payload, nil)
	assert.ErrorIs(t, err, protocol.ErrNotConnected)
}

func TestSignRejectsBadTransactions(t *testing.T) {
	s := test.NewStack(t, test.StackOptions{})
	ctx := t.Context()

	_, err := s.Provider.Connect(ctx, nil)
	require.NoError(t, err)

	err = s.Provider.Call(ctx, protocol.RequestSignTransaction, protocol.SignTransactionPayload{Transaction: "!!"}, nil)
	assert.ErrorIs(t, err, protocol.ErrInvalidPayload)

	err = s.Provider.Call(ctx, protocol.RequestSignTransaction, protocol.SignTransactionPayload{}, nil)
	assert.ErrorIs(t, err, protocol.ErrInvalidPayload)
}

func TestLockedWalletRefusesConnect(t *testing.T) {
	s := test.NewStack(t, test.StackOptions{Locked: true})
	ctx := t.Context()

	connectErrors := subscribe(s, protocol.EventConnectError)

	_, err := s.Provider.Connect(ctx, nil)
	require.ErrorIs(t, err, protocol.ErrWalletLocked)
	assert.False(t, s.Provider.IsConnected())

	e := awaitEvent(t, connectErrors)
	assert.ErrorIs(t, e.Err, protocol.ErrWalletLocked)

	err = s.App.Unlock(ctx, "not the password")
	require.ErrorIs(t, err, protocol.ErrInvalidPassword)

	require.NoError(t, s.App.Unlock(ctx, test.TestPassword))

	res, err := s.Provider.Connect(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, res.Accounts, 1)
}

func TestRejectedConnect(t *testing.T) {
	approver := iframe.NewPromptApprover(strings.NewReader("n\n"), io.Discard)
	s := test.NewStack(t, test.StackOptions{Approver: approver})

	_, err := s.Provider.Connect(t.Context(), nil)
	require.ErrorIs(t, err, protocol.ErrUserRejected)

	_, ok := s.Wallet.GetGrant(t.Context(), test.HostOrigin)
	assert.False(t, ok)
}

func TestRejectedSign(t *testing.T) {
	var prompts strings.Builder
	approver := iframe.NewPromptApprover(strings.NewReader("yes\nno\n"), &prompts)
	s := test.NewStack(t, test.StackOptions{Approver: approver})
	ctx := t.Context()

	_, err := s.Thru.Connect(ctx, &protocol.AppMetadata{AppName: "Dapp"})
	require.NoError(t, err)

	_, err = s.Thru.SignTransaction(ctx, []byte("tx"))
	require.ErrorIs(t, err, protocol.ErrUserRejected)

	assert.Contains(t, prompts.String(), "Dapp ("+test.HostOrigin+") wants to connect")
	assert.Contains(t, prompts.String(), "to sign 2 bytes")
}

func TestDisconnectRevokesGrant(t *testing.T) {
	s := test.NewStack(t, test.StackOptions{})
	ctx := t.Context()

	_, err := s.Provider.Connect(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, s.Provider.Disconnect(ctx))

	_, ok := s.Wallet.GetGrant(ctx, test.HostOrigin)
	assert.False(t, ok)

	accounts, err := s.Provider.GetAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestSwitchAccountNotifiesHost(t *testing.T) {
	s := test.NewStack(t, test.StackOptions{})
	ctx := t.Context()

	first, err := s.Thru.Connect(ctx, nil)
	require.NoError(t, err)

	changes := subscribe(s, protocol.EventAccountChanged)

	second, err := s.App.CreateAccount(ctx, "Savings")
	require.NoError(t, err)
	assert.Equal(t, "m/44'/9999'/1'/0'", second.DerivationPath)

	_, err = s.App.SwitchAccount(ctx, test.HostOrigin, second.Address)
	require.NoError(t, err)

	e := awaitEvent(t, changes)
	require.NotNil(t, e.Account)
	assert.Equal(t, second.Address, e.Account.Address)
	assert.Equal(t, "Savings", e.Account.Label)

	selected := s.Provider.SelectedAccount().UnwrapOrFail(t)
	assert.Equal(t, second.Address, selected.Address)
	assert.Len(t, s.Provider.LastConnectResult().Accounts, 2)

	accounts, err := s.Provider.GetAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, second.Address, accounts[0].Address)
	assert.Equal(t, first.Address, accounts[1].Address)
}

func TestLockResetsHosts(t *testing.T) {
	s := test.NewStack(t, test.StackOptions{})
	ctx := t.Context()

	_, err := s.Provider.Connect(ctx, nil)
	require.NoError(t, err)

	locks := subscribe(s, protocol.EventLock)

	require.NoError(t, s.App.Lock(ctx))

	awaitEvent(t, locks)
	assert.False(t, s.Provider.IsConnected())
	assert.True(t, s.Provider.SelectedAccount().IsNone())

	unlocked, err := s.Worker.IsUnlocked(ctx)
	require.NoError(t, err)
	assert.False(t, unlocked)

	_, ok := s.Wallet.GetGrant(ctx, test.HostOrigin)
	assert.False(t, ok)
}

func TestAutoLockResetsHosts(t *testing.T) {
	clk := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	s := test.NewStack(t, test.StackOptions{Clock: clk})
	ctx := t.Context()

	_, err := s.Provider.Connect(ctx, nil)
	require.NoError(t, err)

	locks := subscribe(s, protocol.EventLock)

	clk.SetTime(clk.Now().Add(custody.DefaultAutoLockTimeout))

	awaitEvent(t, locks)
	assert.False(t, s.Provider.IsConnected())

	unlocked, err := s.Worker.IsUnlocked(ctx)
	require.NoError(t, err)
	assert.False(t, unlocked)
}
