package container

import (
	"context"
	"fmt"

	"github.com/xka/flowmon/cmd/monitor/service"
	"github.com/xka/flowmon/common/bootstrap"
	"github.com/xka/flowmon/common/clients"
	"github.com/xka/flowmon/common/condition"
	"github.com/xka/flowmon/common/ratelimit"
)

// Container holds all initialized services (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Services
	MonitorService *service.MonitorService

	// Limiter is nil when rate limiting is disabled
	Limiter ratelimit.Limiter
}

// NewContainer initializes all services once and resumes stored sessions
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	workerManager := clients.NewWorkerManagerClient(
		clients.NewClientConfig(components.Config),
		components.Logger,
	)
	return NewContainerWithClient(ctx, components, workerManager)
}

// NewContainerWithClient wires the services around an existing client.
// Tests pass a fake here.
func NewContainerWithClient(ctx context.Context, components *bootstrap.Components, client service.Client) (*Container, error) {
	if components.Sessions == nil {
		return nil, fmt.Errorf("monitor requires a session store")
	}

	monitor := service.NewMonitorService(
		client,
		components.Sessions,
		condition.NewEvaluator(),
		components.Config.Polling,
		components.Logger,
	)

	if err := monitor.Resume(ctx); err != nil {
		monitor.Close()
		return nil, fmt.Errorf("failed to resume sessions: %w", err)
	}

	c := &Container{
		Components:     components,
		MonitorService: monitor,
	}
	if components.Config.RateLimit.Enabled {
		// shared through Redis when the session store already uses it
		c.Limiter = ratelimit.New(components.Redis, components.Logger)
	}
	return c, nil
}

// Close stops all pollers
func (c *Container) Close() {
	c.MonitorService.Close()
}
