package keystore_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/wallet/keystore"
)

func TestEncryptDecrypt(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 64)

	ks, err := keystore.Encrypt(seed, "correct horse", keystore.LightScryptParams())
	require.NoError(t, err)
	assert.Equal(t, 3, ks.Version)
	assert.Equal(t, "aes-128-ctr", ks.Crypto.Cipher)
	assert.Equal(t, "scrypt", ks.Crypto.KDF)

	raw, err := json.Marshal(ks)
	require.NoError(t, err)

	got, err := keystore.Decrypt(raw, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, seed, got)

	_, err = keystore.Decrypt(raw, "wrong")
	assert.ErrorIs(t, err, protocol.ErrInvalidPassword)

	_, err = keystore.Decrypt([]byte("{"), "correct horse")
	assert.ErrorIs(t, err, protocol.ErrInvalidPayload)
}

func TestDecryptRejectsMalformedEnvelopes(t *testing.T) {
	seed := bytes.Repeat([]byte{0x24}, 64)

	tests := []struct {
		name   string
		mutate func(ks *keystore.KeystoreJSON)
	}{
		{"short iv", func(ks *keystore.KeystoreJSON) { ks.Crypto.CipherParams.IV = "00" }},
		{"empty iv", func(ks *keystore.KeystoreJSON) { ks.Crypto.CipherParams.IV = "" }},
		{"short dklen", func(ks *keystore.KeystoreJSON) { ks.Crypto.KDFParams.DKLen = 16 }},
		{"huge dklen", func(ks *keystore.KeystoreJSON) { ks.Crypto.KDFParams.DKLen = 1 << 20 }},
		{"n not a power of two", func(ks *keystore.KeystoreJSON) { ks.Crypto.KDFParams.N = 4095 }},
		{"n too large", func(ks *keystore.KeystoreJSON) { ks.Crypto.KDFParams.N = 1 << 30 }},
		{"zero r", func(ks *keystore.KeystoreJSON) { ks.Crypto.KDFParams.R = 0 }},
		{"huge p", func(ks *keystore.KeystoreJSON) { ks.Crypto.KDFParams.P = 1 << 20 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ks, err := keystore.Encrypt(seed, "correct horse", keystore.LightScryptParams())
			require.NoError(t, err)
			tt.mutate(ks)

			raw, err := json.Marshal(ks)
			require.NoError(t, err)

			var got []byte
			require.NotPanics(t, func() {
				got, err = keystore.Decrypt(raw, "correct horse")
			})
			assert.ErrorIs(t, err, protocol.ErrInvalidPayload)
			assert.Nil(t, got)
		})
	}
}

func TestEncryptRejectsUnusableParams(t *testing.T) {
	_, err := keystore.Encrypt([]byte{1}, "pw", &keystore.ScryptParams{DKLen: 16, N: 4096, R: 8, P: 1})
	require.Error(t, err)

	require.NoError(t, keystore.DefaultScryptParams().Validate())
	require.NoError(t, keystore.LightScryptParams().Validate())
}

func TestEncryptIsRandomized(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)

	a, err := keystore.Encrypt(seed, "pw", keystore.LightScryptParams())
	require.NoError(t, err)
	b, err := keystore.Encrypt(seed, "pw", keystore.LightScryptParams())
	require.NoError(t, err)

	assert.NotEqual(t, a.Crypto.Ciphertext, b.Crypto.Ciphertext)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestServiceFileLifecycle(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "wallet", "keystore.json")

	svc, err := keystore.NewService(path, keystore.LightScryptParams())
	require.NoError(t, err)

	exists, err := svc.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = svc.GetKeystore(ctx)
	assert.ErrorIs(t, err, os.ErrNotExist)

	seed := bytes.Repeat([]byte{0x11}, 64)
	_, err = svc.CreateKeystore(ctx, seed, "pw")
	require.NoError(t, err)

	_, err = svc.CreateKeystore(ctx, seed, "pw")
	assert.Error(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	ks, err := svc.GetKeystore(ctx)
	require.NoError(t, err)

	got, err := svc.DecryptSeed(ctx, ks, "pw")
	require.NoError(t, err)
	assert.Equal(t, seed, got)

	_, err = svc.DecryptSeed(ctx, ks, "nope")
	assert.ErrorIs(t, err, protocol.ErrInvalidPassword)
}
