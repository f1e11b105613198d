package keys

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tyler-smith/go-bip39"
	"github/chapool/embedded-wallet/internal/api"
	"github/chapool/embedded-wallet/internal/config"
	"github/chapool/embedded-wallet/internal/wallet/seed"
	"golang.org/x/term"
)

func newRecover() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Restores the keystore from a recovery phrase",
		Long: `Reads a BIP39 recovery phrase from the terminal without echoing it and
writes a new keystore at WALLET_KEYSTORE_PATH. Refuses to overwrite an
existing keystore.`,
		Run: func(_ *cobra.Command, _ []string) {
			if err := runRecover(context.Background()); err != nil {
				log.Fatal().Err(err).Msg("Failed to recover keystore")
			}
		},
	}
}

//nolint:forbidigo // The phrase is read from the terminal only.
func runRecover(ctx context.Context) error {
	cfg, err := config.LoadServiceConfig()
	if err != nil {
		return err
	}

	ks, err := api.NewKeystore(cfg)
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stderr, "Enter recovery phrase: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return errors.Wrap(err, "failed to read recovery phrase")
	}
	defer seed.Wipe(raw)

	mnemonic := strings.Join(strings.Fields(string(raw)), " ")
	seedBytes, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return errors.Wrap(err, "invalid recovery phrase")
	}
	defer seed.Wipe(seedBytes)

	pw, err := passwordSource(cfg)("Enter password for keystore: ", true)
	if err != nil {
		return err
	}

	if _, err := ks.CreateKeystore(ctx, seedBytes, pw); err != nil {
		return err
	}

	log.Info().Str("path", cfg.Wallet.KeystorePath).Msg("Keystore recovered")

	return nil
}
