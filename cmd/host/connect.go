package host

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newConnect(flags *Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connects to the wallet and prints the granted accounts",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := runConnect(cmd.Context(), flags); err != nil {
				log.Fatal().Err(err).Msg("Failed to connect")
			}
		},
	}
}

func runConnect(ctx context.Context, flags *Flags) error {
	s, err := connect(ctx, flags)
	if err != nil {
		return err
	}
	defer s.close()

	for _, acc := range s.provider.Accounts() {
		//nolint:forbidigo
		fmt.Printf("%s\t%s\t%s\n", acc.AccountType, acc.Address, acc.Label)
	}

	return nil
}
