package wallet_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/wallet"
	"github/chapool/embedded-wallet/internal/wallet/keystore"
)

func TestInitializeKeystore(t *testing.T) {
	ctx := t.Context()
	ks, err := keystore.NewService(filepath.Join(t.TempDir(), "keystore.json"), keystore.LightScryptParams())
	require.NoError(t, err)

	_, err = wallet.InitializeKeystore(ctx, ks, wallet.StaticPassword("short"))
	assert.Error(t, err)

	created, err := wallet.InitializeKeystore(ctx, ks, wallet.StaticPassword("correct horse"))
	require.NoError(t, err)
	assert.True(t, created.Created)
	assert.Len(t, strings.Fields(created.Mnemonic), 24)

	opened, err := wallet.InitializeKeystore(ctx, ks, wallet.StaticPassword("correct horse"))
	require.NoError(t, err)
	assert.False(t, opened.Created)
	assert.Empty(t, opened.Mnemonic)

	_, err = wallet.InitializeKeystore(ctx, ks, wallet.StaticPassword("battery staple"))
	assert.ErrorIs(t, err, protocol.ErrInvalidPassword)
}
