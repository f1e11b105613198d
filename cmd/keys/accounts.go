package keys

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/embedded-wallet/internal/api"
	"github/chapool/embedded-wallet/internal/config"
	"github/chapool/embedded-wallet/internal/util/command"
)

type AccountsFlags struct {
	Count uint32
}

func newAccounts() *cobra.Command {
	var flags AccountsFlags

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Lists derived accounts",
		Long: `Unlocks the keystore inside a custody worker and prints the address,
public key and derivation path of the first accounts.`,
		Run: func(_ *cobra.Command, _ []string) {
			if err := runAccounts(flags); err != nil {
				log.Fatal().Err(err).Msg("Failed to list accounts")
			}
		},
	}

	cmd.Flags().Uint32VarP(&flags.Count, "count", "n", 1, "Number of accounts to derive.")

	return cmd
}

func runAccounts(flags AccountsFlags) error {
	cfg, err := config.LoadServiceConfig()
	if err != nil {
		return err
	}

	return command.WithServer(context.Background(), cfg, func(ctx context.Context, s *api.Server) error {
		pw, err := passwordSource(cfg)("Enter keystore password: ", false)
		if err != nil {
			return err
		}

		if err := s.Frame.Unlock(ctx, pw); err != nil {
			return err
		}

		for i := range flags.Count {
			acc, err := s.Worker.DeriveAccount(ctx, i)
			if err != nil {
				return err
			}

			//nolint:forbidigo
			fmt.Printf("%d\t%s\t%s\t%s\n", i, acc.Address, acc.PublicKey, acc.Path)
		}

		return s.Worker.Lock(ctx)
	})
}
