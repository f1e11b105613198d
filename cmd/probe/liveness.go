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

type LivenessFlags struct {
	Verbose bool
}

func newLiveness() *cobra.Command {
	var flags LivenessFlags

	cmd := &cobra.Command{
		Use:   "liveness",
		Short: "Runs liveness probes",
		Long: `This command starts a custody worker and checks that it runs and
that every configured probe path is writeable. Exits 1 on failure.`,
		Run: func(_ *cobra.Command, _ []string) {
			os.Exit(livenessCmdFunc(flags))
		},
	}

	cmd.Flags().BoolVarP(&flags.Verbose, verboseFlag, "v", false, "Show verbose output.")

	return cmd
}

func livenessCmdFunc(flags LivenessFlags) int {
	cfg, err := config.LoadServiceConfig()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load config")
		return 1
	}

	err = command.WithServer(context.Background(), cfg, func(ctx context.Context, s *api.Server) error {
		ctx, cancel := context.WithTimeout(ctx, cfg.Management.LivenessTimeout)
		defer cancel()

		errs := common.ProbeLiveness(ctx, s)
		if len(errs) > 0 {
			log.Error().Errs("errs", errs).Msg("Liveness probe failed")
			return errs[0]
		}

		if flags.Verbose {
			log.Info().Msg("Liveness probe succeeded")
		}

		return nil
	})
	if err != nil {
		return 1
	}

	return 0
}
