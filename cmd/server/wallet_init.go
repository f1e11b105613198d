package server

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github/chapool/embedded-wallet/internal/api"
	"github/chapool/embedded-wallet/internal/wallet"
)

// initializeWallet makes sure a keystore exists, unlocks the custody worker
// with its password and derives the first account.
func initializeWallet(ctx context.Context, s *api.Server) error {
	var password wallet.PasswordFunc = wallet.PromptPassword
	if s.Config.Wallet.Password != "" {
		password = wallet.StaticPassword(s.Config.Wallet.Password)
	}

	res, err := wallet.InitializeKeystore(ctx, s.Keystore, password)
	if err != nil {
		return errors.Wrap(err, "failed to initialize keystore")
	}

	if res.Created {
		printMnemonic(res.Mnemonic)
	}

	if err := s.Frame.Unlock(ctx, res.Password); err != nil {
		return errors.Wrap(err, "failed to unlock wallet")
	}

	if len(s.Wallet.ListAccounts(ctx)) == 0 {
		acc, err := s.Frame.CreateAccount(ctx, "")
		if err != nil {
			return errors.Wrap(err, "failed to create first account")
		}

		log.Info().
			Str("address", acc.Address).
			Str("path", acc.DerivationPath).
			Msg("Derived first account")
	}

	return nil
}

//nolint:forbidigo // The mnemonic must reach the operator, never the log.
func printMnemonic(mnemonic string) {
	fmt.Fprintln(os.Stderr, "Write down this recovery phrase and keep it safe. It is shown only once:")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "  "+mnemonic)
	fmt.Fprintln(os.Stderr)
}
