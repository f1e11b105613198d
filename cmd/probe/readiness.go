package probe

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/embedded-wallet/internal/api"
	"github/chapool/embedded-wallet/internal/api/handlers/common"
	"github/chapool/embedded-wallet/internal/config"
	"github/chapool/embedded-wallet/internal/util/command"
)

type ReadinessFlags struct {
	Verbose bool
}

func newReadiness() *cobra.Command {
	var flags ReadinessFlags

	cmd := &cobra.Command{
		Use:   "readiness",
		Short: "Runs readiness probes",
		Long: `This command checks that the custody worker answers requests and
that the keystore is readable. Exits 1 on failure.`,
		Run: func(_ *cobra.Command, _ []string) {
			os.Exit(readinessCmdFunc(flags))
		},
	}

	cmd.Flags().BoolVarP(&flags.Verbose, verboseFlag, "v", false, "Show verbose output.")

	return cmd
}

func readinessCmdFunc(flags ReadinessFlags) int {
	cfg, err := config.LoadServiceConfig()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load config")
		return 1
	}

	err = command.WithServer(context.Background(), cfg, func(ctx context.Context, s *api.Server) error {
		ctx, cancel := context.WithTimeout(ctx, cfg.Management.ReadinessTimeout)
		defer cancel()

		errs := common.ProbeReadiness(ctx, s)
		if len(errs) > 0 {
			log.Error().Errs("errs", errs).Msg("Readiness probe failed")
			return errs[0]
		}

		if flags.Verbose {
			log.Info().Msg("Readiness probe succeeded")
		}

		return nil
	})
	if err != nil {
		return 1
	}

	return 0
}
