package host

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/embedded-wallet/internal/wallet"
)

func newSign(flags *Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "sign <hex-transaction>",
		Short: "Connects and asks the wallet to sign a serialized transaction",
		Long: `Sends the hex encoded serialized transaction to the wallet, verifies
the returned signature against the connected account and prints the
base64 signed transaction.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := runSign(cmd.Context(), flags, args[0]); err != nil {
				log.Fatal().Err(err).Msg("Failed to sign transaction")
			}
		},
	}
}

func runSign(ctx context.Context, flags *Flags, transaction string) error {
	serialized, err := hex.DecodeString(transaction)
	if err != nil {
		return errors.Wrap(err, "transaction is not hex")
	}

	s, err := connect(ctx, flags)
	if err != nil {
		return err
	}
	defer s.close()

	signed, err := s.thru.SignTransaction(ctx, serialized)
	if err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(signed)
	if _, err := wallet.VerifySignedTransaction(encoded, s.account.Address); err != nil {
		return errors.Wrap(err, "wallet returned an invalid signature")
	}

	//nolint:forbidigo
	fmt.Println(encoded)

	return nil
}
