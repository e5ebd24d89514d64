package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xka/flowmon/common/config"
	"github.com/xka/flowmon/common/logger"
	"github.com/xka/flowmon/common/session"
)

func TestSetup_MemorySessions(t *testing.T) {
	cfg := config.Defaults("monitor-test")

	components, err := Setup(context.Background(), "monitor-test",
		WithCustomConfig(cfg),
		WithCustomLogger(logger.Nop()),
	)
	require.NoError(t, err)

	assert.Nil(t, components.Redis)
	assert.Nil(t, components.Telemetry)
	assert.IsType(t, &session.MemoryStore{}, components.Sessions)
	assert.NoError(t, components.Health(context.Background()))
	assert.NoError(t, components.Shutdown(context.Background()))
}

func TestSetup_WithoutSessions(t *testing.T) {
	components, err := Setup(context.Background(), "cli",
		WithCustomConfig(config.Defaults("cli")),
		WithCustomLogger(logger.Nop()),
		WithoutSessions(),
	)
	require.NoError(t, err)
	assert.Nil(t, components.Sessions)
	assert.NoError(t, components.Shutdown(context.Background()))
}
