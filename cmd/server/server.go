package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/embedded-wallet/internal/api"
	"github/chapool/embedded-wallet/internal/api/router"
	"github/chapool/embedded-wallet/internal/config"
	"github/chapool/embedded-wallet/internal/util/command"
)

type Flags struct {
	SkipInit bool
}

func New() *cobra.Command {
	var flags Flags

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Starts the server",
		Long: `Starts the wallet frame server

Opens (or creates) the keystore, unlocks the custody worker and serves
host pages on FRAME_URL until interrupted.`,
		Run: func(_ *cobra.Command, _ []string) {
			runServer(flags)
		},
	}

	cmd.Flags().BoolVar(&flags.SkipInit, "skip-init", false,
		"Start locked; the wallet is unlocked on the first request that needs it.")

	return cmd
}

func runServer(flags Flags) {
	cfg, err := config.LoadServiceConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = command.WithServer(ctx, cfg, func(ctx context.Context, s *api.Server) error {
		if !flags.SkipInit {
			if err := initializeWallet(ctx, s); err != nil {
				return err
			}
		}

		if err := router.Init(s); err != nil {
			log.Error().Err(err).Msg("Failed to initialize router")
			return err
		}

		go func() {
			if err := s.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Custody event relay stopped")
			}
		}()

		errc := make(chan error, 1)
		go func() {
			log.Info().Str("listen_address", cfg.Echo.ListenAddress).Str("frame_url", cfg.Frame.URL).Msg("Starting server")
			errc <- s.Start()
		}()

		select {
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			log.Error().Err(err).Msg("Failed to start server")
			return err
		case <-ctx.Done():
			log.Info().Msg("Received shutdown signal")
			return nil
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
