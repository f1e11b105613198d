package host

import (
	"context"

	"github.com/spf13/cobra"
	"github/chapool/embedded-wallet/internal/bus/wsport"
	"github/chapool/embedded-wallet/internal/chain"
	"github/chapool/embedded-wallet/internal/config"
	"github/chapool/embedded-wallet/internal/frame"
	"github/chapool/embedded-wallet/internal/protocol"
	"github/chapool/embedded-wallet/internal/provider"
	"github/chapool/embedded-wallet/internal/util/command"
)

const (
	originFlag  = "origin"
	urlFlag     = "url"
	appNameFlag = "app-name"

	defaultOrigin = "http://localhost:3000"
)

// Flags are shared by every host subcommand.
type Flags struct {
	Origin  string
	URL     string
	AppName string
}

func New() *cobra.Command {
	var flags Flags

	cmd := command.NewSubcommandGroup("host",
		newConnect(&flags),
		newSign(&flags),
	)
	cmd.Short = "Acts as a host page attaching to a running wallet frame"

	cmd.PersistentFlags().StringVar(&flags.Origin, originFlag, defaultOrigin, "Origin the host attaches from.")
	cmd.PersistentFlags().StringVar(&flags.URL, urlFlag, "", "Frame URL. Defaults to FRAME_URL.")
	cmd.PersistentFlags().StringVar(&flags.AppName, appNameFlag, "cli host", "App name shown when connecting.")

	return cmd
}

// session is an attached host with a connected Thru account.
type session struct {
	provider *provider.Provider
	thru     *chain.Thru
	account  protocol.Account
}

func connect(ctx context.Context, flags *Flags) (*session, error) {
	cfg := config.DefaultServiceConfigFromEnv()
	command.ConfigureLogger(cfg)

	url := flags.URL
	if url == "" {
		url = cfg.Frame.URL
	}

	ch, err := frame.NewChannel(frame.Config{
		URL:              url,
		Origin:           flags.Origin,
		Launcher:         &wsport.Launcher{Origin: flags.Origin},
		ReadinessTimeout: cfg.Frame.ReadinessTimeout,
		RequestTimeout:   cfg.Frame.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}

	p, err := provider.New(ch)
	if err != nil {
		return nil, err
	}

	thru := chain.NewThru(p)
	acc, err := thru.Connect(ctx, &protocol.AppMetadata{AppName: flags.AppName, AppURL: flags.Origin})
	if err != nil {
		p.Destroy()
		return nil, err
	}

	return &session{provider: p, thru: thru, account: acc}, nil
}

func (s *session) close() {
	s.provider.Destroy()
}
