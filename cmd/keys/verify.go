package keys

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/embedded-wallet/internal/wallet"
	"github/chapool/embedded-wallet/internal/wallet/signer"
)

func newVerify() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <signed-transaction> <address>",
		Short: "Verifies a signed transaction",
		Long: `Checks that the base64 signed transaction, a 64 byte signature followed
by the payload, was signed by the account at address. Prints the
signature and the payload on success.`,
		Args: cobra.ExactArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			if err := runVerify(args[0], args[1]); err != nil {
				log.Fatal().Err(err).Msg("Verification failed")
			}
		},
	}
}

func runVerify(signedTransaction string, address string) error {
	payload, err := wallet.VerifySignedTransaction(signedTransaction, address)
	if err != nil {
		return err
	}

	// Already validated above.
	raw, _ := base64.StdEncoding.DecodeString(signedTransaction)

	var sig [signer.SignatureSize]byte
	copy(sig[:], raw)

	//nolint:forbidigo
	fmt.Printf("signature\t%s\npayload\t%s\n", signer.EncodeSignature(sig), hex.EncodeToString(payload))

	return nil
}
