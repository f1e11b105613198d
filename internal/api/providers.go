package api

import (
	"context"
	"os"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/pkg/errors"
	"github/chapool/embedded-wallet/internal/config"
	"github/chapool/embedded-wallet/internal/custody"
	"github/chapool/embedded-wallet/internal/iframe"
	"github/chapool/embedded-wallet/internal/metrics"
	"github/chapool/embedded-wallet/internal/wallet"
	"github/chapool/embedded-wallet/internal/wallet/keystore"
	"github/chapool/embedded-wallet/internal/worker"
)

// PROVIDERS - define here only providers that for various reasons (e.g. cyclic dependency) can't live in their corresponding packages
// or for wrapping providers that only accept sub-configs to prevent the requirements for defining providers for sub-configs.
// https://github.com/google/wire/blob/main/docs/guide.md#defining-providers

// NewClock returns the wall clock.
//
//nolint:ireturn
func NewClock() clock.Clock {
	return clock.NewDefaultClock()
}

// NewKeystore opens the keystore file named by the config.
//
//nolint:ireturn
func NewKeystore(cfg config.Server) (keystore.Service, error) {
	var params *keystore.ScryptParams
	if cfg.Wallet.LightScrypt {
		params = keystore.LightScryptParams()
	}

	return keystore.NewService(cfg.Wallet.KeystorePath, params)
}

// NewWorker spawns the custody worker.
func NewWorker(cfg config.Server, clk clock.Clock, m *metrics.Service) (*worker.Client, error) {
	spawner := custody.Spawner(custody.Config{
		Clock:           clk,
		AutoLockTimeout: cfg.Wallet.AutoLockTimeout,
		CoinType:        cfg.Wallet.CoinType,
		Metrics:         m,
	})

	c, err := worker.NewClient(worker.Config{
		Spawner:        spawner,
		Clock:          clk,
		RequestTimeout: cfg.Worker.RequestTimeout,
		Metrics:        m,
	})
	if err != nil {
		return nil, err
	}

	if err := c.Initialize(context.Background()); err != nil {
		return nil, errors.Wrap(err, "failed to start custody worker")
	}

	return c, nil
}

// NewFrameApp builds the frame application. Without auto approval every
// request is confirmed on the terminal, which also asks for the keystore
// password whenever the wallet is locked and no password is configured.
func NewFrameApp(
	cfg config.Server,
	w wallet.Service,
	c *worker.Client,
	ks keystore.Service,
	m *metrics.Service,
) (*iframe.App, error) {
	var approver iframe.Approver = iframe.AutoApprover{}
	if !cfg.Wallet.AutoApprove {
		approver = iframe.NewPromptApprover(os.Stdin, os.Stderr)
	}

	var password wallet.PasswordFunc
	switch {
	case cfg.Wallet.Password != "":
		password = wallet.StaticPassword(cfg.Wallet.Password)
	case !cfg.Wallet.AutoApprove:
		password = wallet.PromptPassword
	}

	return iframe.New(iframe.Config{
		WalletName: cfg.Wallet.Name,
		Wallet:     w,
		Custody:    c,
		Keystore:   ks,
		Approver:   approver,
		Password:   password,
		Metrics:    m,
	})
}
