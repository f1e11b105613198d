package test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/config"
	"github/chapool/embedded-wallet/internal/wallet/keystore"
)

const (
	// TestPassword protects every keystore created by this package.
	TestPassword = "correct horse battery"

	// HostOrigin is the origin test hosts attach from.
	HostOrigin = "https://dapp.example"
)

// TestSeed returns the fixed seed behind every test keystore.
func TestSeed() []byte {
	return bytes.Repeat([]byte{0x5e}, 64)
}

// NewTestConfig returns the env based server config adjusted for tests: a
// keystore in a temp dir, cheap scrypt, auto approval and a known
// password.
func NewTestConfig(t *testing.T) config.Server {
	t.Helper()

	dir := t.TempDir()

	cfg := config.DefaultServiceConfigFromEnv()
	cfg.Echo.ListenAddress = "127.0.0.1:0"
	cfg.Logger.PrettyPrintConsole = false
	cfg.Management.ProbeWriteablePathsAbs = []string{dir}
	cfg.Management.ProbeWriteableTouchfile = ".healthy"
	cfg.Frame.AllowedOrigins = []string{HostOrigin}
	cfg.Frame.ReadinessTimeout = 5 * time.Second
	cfg.Frame.RequestTimeout = 5 * time.Second
	cfg.Worker.RequestTimeout = 5 * time.Second
	cfg.Wallet.KeystorePath = filepath.Join(dir, "keystore.json")
	cfg.Wallet.LightScrypt = true
	cfg.Wallet.AutoApprove = true
	cfg.Wallet.Password = TestPassword

	return cfg
}

// CreateTestKeystore writes a keystore holding TestSeed to the path of cfg.
func CreateTestKeystore(t *testing.T, cfg config.Server) keystore.Service {
	t.Helper()

	ks, err := keystore.NewService(cfg.Wallet.KeystorePath, keystore.LightScryptParams())
	require.NoError(t, err)

	_, err = ks.CreateKeystore(t.Context(), TestSeed(), TestPassword)
	require.NoError(t, err)

	return ks
}
