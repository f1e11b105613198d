//go:build wireinject

package api

import (
	"github.com/google/wire"
	"github.com/lightningnetwork/lnd/clock"
	"github/chapool/embedded-wallet/internal/config"
	"github/chapool/embedded-wallet/internal/metrics"
	"github/chapool/embedded-wallet/internal/wallet"
)

// INJECTORS - https://github.com/google/wire/blob/main/docs/guide.md#injectors

// serviceSet groups the default set of providers that are required for initing a server
var serviceSet = wire.NewSet(
	newServerWithComponents,
	metrics.New,
	NewKeystore,
	wallet.NewService,
	NewWorker,
	NewFrameApp,
)

// InitNewServer returns a new Server instance.
func InitNewServer(
	_ config.Server,
) (*Server, error) {
	wire.Build(serviceSet, NewClock)
	return new(Server), nil
}

// InitNewServerWithClock returns a new Server instance driven by the given
// clock. All the other components are initialized via go wire according to
// the configuration.
func InitNewServerWithClock(
	_ config.Server,
	_ clock.Clock,
) (*Server, error) {
	wire.Build(serviceSet)
	return new(Server), nil
}
