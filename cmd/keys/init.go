package keys

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/embedded-wallet/internal/api"
	"github/chapool/embedded-wallet/internal/config"
	"github/chapool/embedded-wallet/internal/wallet"
)

func newInit() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Creates the keystore",
		Long: `Generates a new 24 word recovery phrase and stores its seed in the
keystore at WALLET_KEYSTORE_PATH, encrypted with a password. If the
keystore exists, only checks that the password opens it.`,
		Run: func(_ *cobra.Command, _ []string) {
			if err := runInit(context.Background()); err != nil {
				log.Fatal().Err(err).Msg("Failed to initialize keystore")
			}
		},
	}
}

//nolint:forbidigo // The mnemonic must reach the operator, never the log.
func runInit(ctx context.Context) error {
	cfg, err := config.LoadServiceConfig()
	if err != nil {
		return err
	}

	ks, err := api.NewKeystore(cfg)
	if err != nil {
		return err
	}

	res, err := wallet.InitializeKeystore(ctx, ks, passwordSource(cfg))
	if err != nil {
		return err
	}

	if res.Created {
		fmt.Fprintln(os.Stderr, "Keystore created. Write down this recovery phrase, it is shown only once:")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "  "+res.Mnemonic)
		fmt.Fprintln(os.Stderr)
	} else {
		fmt.Fprintln(os.Stderr, "Keystore exists and the password is correct.")
	}

	return nil
}

func passwordSource(cfg config.Server) wallet.PasswordFunc {
	if cfg.Wallet.Password != "" {
		return wallet.StaticPassword(cfg.Wallet.Password)
	}

	return wallet.PromptPassword
}
