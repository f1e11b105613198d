package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/rs/zerolog/log"
	"github/chapool/embedded-wallet/internal/config"
	"github/chapool/embedded-wallet/internal/iframe"
	"github/chapool/embedded-wallet/internal/metrics"
	"github/chapool/embedded-wallet/internal/util"
	"github/chapool/embedded-wallet/internal/wallet"
	"github/chapool/embedded-wallet/internal/wallet/keystore"
	"github/chapool/embedded-wallet/internal/worker"
)

type Router struct {
	Routes     []*echo.Route
	Root       *echo.Group
	Management *echo.Group
	Frame      *echo.Group
}

// Server is a central struct keeping all the dependencies.
// It is initialized with wire, which handles making the new instances of the components
// in the right order. To add a new component, 3 steps are required:
// - declaring it in this struct
// - adding a provider function in providers.go
// - adding the provider's function name to the arguments of wire.Build() in wire.go
//
// Components labeled as `wire:"-"` will be skipped and have to be initialized after the InitNewServer* call.
// For more information about wire refer to https://pkg.go.dev/github.com/google/wire
type Server struct {
	// skip wire:
	// -> initialized with router.Init(s) function
	Echo   *echo.Echo `wire:"-"`
	Router *Router    `wire:"-"`

	Config   config.Server
	Clock    clock.Clock
	Metrics  *metrics.Service
	Keystore keystore.Service
	Wallet   wallet.Service
	Worker   *worker.Client // custody worker client
	Frame    *iframe.App    // serves attached hosts
}

// newServerWithComponents is used by wire to initialize the server components.
// Components not listed here won't be handled by wire and should be initialized separately.
// Components which shouldn't be handled must be labeled `wire:"-"` in Server struct.
func newServerWithComponents(
	cfg config.Server,
	clk clock.Clock,
	metrics *metrics.Service,
	keystore keystore.Service,
	wallet wallet.Service,
	worker *worker.Client,
	frame *iframe.App,
) *Server {
	return &Server{
		Config:   cfg,
		Clock:    clk,
		Metrics:  metrics,
		Keystore: keystore,
		Wallet:   wallet,
		Worker:   worker,
		Frame:    frame,
	}
}

func NewServer(config config.Server) *Server {
	s := &Server{
		Config: config,
	}

	return s
}

func (s *Server) Ready() bool {
	if err := util.IsStructInitialized(s); err != nil {
		log.Debug().Err(err).Msg("Server is not fully initialized")
		return false
	}

	if !s.Worker.Running() {
		log.Debug().Msg("Custody worker is not running")
		return false
	}

	return true
}

// Run relays custody events to attached frames until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if s.Frame == nil {
		return errors.New("server has no frame app")
	}

	return s.Frame.Run(ctx)
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	if err := s.Echo.Start(s.Config.Echo.ListenAddress); err != nil {
		return fmt.Errorf("failed to start echo server: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) []error {
	log.Warn().Msg("Shutting down server")

	var errs []error

	if s.Frame != nil {
		log.Debug().Msg("Detaching frames")
		s.Frame.Close()
	}

	if s.Echo != nil {
		log.Debug().Msg("Shutting down echo server")

		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = append(errs, err)
		}
	}

	if s.Worker != nil {
		log.Debug().Msg("Terminating custody worker")
		s.Worker.Terminate()
	}

	return errs
}
