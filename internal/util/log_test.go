package util_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github/chapool/embedded-wallet/internal/util"
)

func TestLogFromContext(t *testing.T) {
	ctx := context.Background()
	assert.NotEqual(t, zerolog.Disabled, util.LogFromContext(ctx).GetLevel())

	var buf bytes.Buffer
	l := zerolog.New(&buf).With().Str("component", "test").Logger()
	ctx = util.WithLogger(ctx, l)

	util.LogFromContext(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"test"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestDisableLogger(t *testing.T) {
	ctx := util.WithLogger(context.Background(), zerolog.Nop())
	assert.NotEqual(t, zerolog.Disabled, util.LogFromContext(ctx).GetLevel())

	ctx = util.DisableLogger(ctx, true)
	assert.True(t, util.ShouldDisableLogger(ctx))
	assert.Equal(t, zerolog.Disabled, util.LogFromContext(ctx).GetLevel())
}
