package address_test

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/wallet/address"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// SLIP-0010 ed25519 test vector 1.
func TestSLIP10Vectors(t *testing.T) {
	ctx := t.Context()
	svc := address.NewService(address.DefaultCoinType)
	seed := mustHex(t, "000102030405060708090a0b0c0d0e0f")

	tests := []struct {
		path    string
		private string
		public  string
	}{
		{
			path:    "m/0'",
			private: "68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3",
			public:  "8c8a13df77a28f3445213a0f432fde644acaa215fc72dcdf300d5efaa85d350c",
		},
		{
			path:    "m/0'/1'",
			private: "b1d0bad404bf35da785a64ca1ac54b2617211d2777696fbffaf208f746ae84f2",
			public:  "1932a5270f335bed617d5b935c80aedb1a35bd9fc1e31acafd5372c30f5c1187",
		},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			kp, err := svc.DeriveKeypair(ctx, seed, tt.path)
			require.NoError(t, err)
			defer kp.Wipe()

			assert.Equal(t, tt.private, hex.EncodeToString(kp.PrivateKey))
			assert.Equal(t, tt.public, hex.EncodeToString(kp.PublicKey[:]))
		})
	}
}

func TestKeypairWipeScrubsPrivateKey(t *testing.T) {
	svc := address.NewService(address.DefaultCoinType)
	master := bytes.Repeat([]byte{0x11}, 64)

	kp, err := svc.DeriveKeypair(t.Context(), master, "m/44'/9999'/0'/0'")
	require.NoError(t, err)

	priv := kp.PrivateKey
	require.NotEqual(t, make([]byte, len(priv)), priv)

	kp.Wipe()
	assert.Nil(t, kp.PrivateKey)
	assert.Equal(t, make([]byte, len(priv)), priv)
}

func TestPublicKeyMatchesStandardEd25519(t *testing.T) {
	priv := make([]byte, address.PrivateKeySize)
	for i := range priv {
		priv[i] = byte(i * 7)
	}

	pub, err := address.PublicKey(priv)
	require.NoError(t, err)

	std := ed25519.NewKeyFromSeed(priv).Public().(ed25519.PublicKey)
	assert.Equal(t, []byte(std), pub[:])

	_, err = address.PublicKey(priv[:16])
	assert.Error(t, err)
}

func TestDeriveAddressIsDeterministic(t *testing.T) {
	ctx := t.Context()
	svc := address.NewService(address.DefaultCoinType)
	seed := sha256.Sum256([]byte("deterministic"))

	a, err := svc.DeriveAddress(ctx, seed[:], 0)
	require.NoError(t, err)
	b, err := svc.DeriveAddress(ctx, seed[:], 0)
	require.NoError(t, err)
	c, err := svc.DeriveAddress(ctx, seed[:], 1)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, "m/44'/9999'/0'/0'", a.Path)
	assert.Equal(t, "m/44'/9999'/1'/0'", c.Path)
	assert.NotEqual(t, a.Address, c.Address)
	assert.True(t, strings.HasPrefix(a.Address, "ta"))
	assert.Len(t, a.Address, address.EncodedLength)
}

func TestDeriveRejectsBadPaths(t *testing.T) {
	ctx := t.Context()
	svc := address.NewService(address.DefaultCoinType)
	seed := make([]byte, 32)

	for _, path := range []string{"", "44'/0'", "m/44'/x'", "m/44'/9999'/0'/0"} {
		_, err := svc.DeriveKeypair(ctx, seed, path)
		assert.Error(t, err, path)
	}

	_, err := svc.DeriveKeypair(ctx, nil, "m/0'")
	assert.Error(t, err)
}

func TestAddressCodec(t *testing.T) {
	var pub [address.PublicKeySize]byte
	for i := range pub {
		pub[i] = byte(255 - i)
	}

	encoded := address.Encode(pub)
	assert.Len(t, encoded, address.EncodedLength)
	assert.True(t, address.IsValid(encoded))

	decoded, err := address.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, pub, decoded)

	// The zero key has a zero checksum.
	assert.Equal(t, "ta"+strings.Repeat("A", 44), address.Encode([address.PublicKeySize]byte{}))

	// Flipping a data character breaks the checksum.
	corrupted := []byte(encoded)
	if corrupted[10] == 'A' {
		corrupted[10] = 'B'
	} else {
		corrupted[10] = 'A'
	}
	_, err = address.Decode(string(corrupted))
	assert.ErrorIs(t, err, protocol.ErrChecksumMismatch)

	_, err = address.Decode("tb" + encoded[2:])
	assert.ErrorIs(t, err, protocol.ErrInvalidPayload)
	_, err = address.Decode(encoded[:45])
	assert.ErrorIs(t, err, protocol.ErrInvalidPayload)
	_, err = address.Decode(encoded[:45] + "!")
	assert.ErrorIs(t, err, protocol.ErrInvalidPayload)
}

func TestProgramDerived(t *testing.T) {
	var owner [address.PublicKeySize]byte
	owner[0] = 1
	seed := address.PackSeed(1, 2, 3, 4)

	assert.Equal(t, byte(1), seed[0])
	assert.Equal(t, byte(2), seed[8])

	persistent := address.ProgramDerived(owner, false, seed)
	ephemeral := address.ProgramDerived(owner, true, seed)
	assert.NotEqual(t, persistent, ephemeral)

	h := sha256.New()
	h.Write(owner[:])
	h.Write([]byte{1})
	h.Write(seed[:])
	assert.Equal(t, h.Sum(nil), ephemeral[:])
}
