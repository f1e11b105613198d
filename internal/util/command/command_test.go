package command_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/embedded-wallet/internal/api"
	"github/chapool/embedded-wallet/internal/test"
	"github/chapool/embedded-wallet/internal/util/command"
)

func TestWithServer(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		ctx := t.Context()

		var testError = errors.New("test error")

		s.Config.Logger.PrettyPrintConsole = false
		resultErr := command.WithServer(ctx, s.Config, func(ctx context.Context, s *api.Server) error {
			require.True(t, s.Ready())

			unlocked, err := s.Worker.IsUnlocked(ctx)
			require.NoError(t, err)
			assert.False(t, unlocked)

			return testError
		})

		assert.Equal(t, testError, resultErr)
	})
}

func TestNewSubcommandGroup(t *testing.T) {
	group := command.NewSubcommandGroup("probe", command.NewSubcommandGroup("liveness"))

	assert.Equal(t, "probe", group.Use)
	require.Len(t, group.Commands(), 1)
	assert.Equal(t, "liveness", group.Commands()[0].Use)
}
