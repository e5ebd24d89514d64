package bootstrap

import (
	"context"
	"fmt"

	"github.com/xka/flowmon/common/config"
	"github.com/xka/flowmon/common/logger"
	"github.com/xka/flowmon/common/redis"
	"github.com/xka/flowmon/common/session"
	"github.com/xka/flowmon/common/telemetry"
)

// Setup initializes all service components
// This is the main entry point for all services
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	// 3. Initialize telemetry (if enabled)
	if !options.skipTelemetry && components.Config.Telemetry.EnableTracing {
		components.Telemetry, err = telemetry.New(components.Config, components.Logger)
		if err != nil {
			// Don't fail startup if telemetry fails
			components.Logger.Warn("failed to start telemetry", "error", err)
		} else {
			components.addCleanup(func() error {
				components.Logger.Info("flushing traces")
				return components.Telemetry.Shutdown(context.Background())
			})
		}
	}

	// 4. Initialize session store (if not skipped)
	if !options.skipSessions {
		if components.Config.Session.Backend == config.SessionBackendRedis {
			components.Logger.Info("connecting to redis", "addr", components.Config.RedisAddr())
			components.Redis, err = redis.Connect(ctx, redis.Options{
				Addr:     components.Config.RedisAddr(),
				Password: components.Config.Redis.Password,
				DB:       components.Config.Redis.DB,
			}, components.Logger)
			if err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("failed to connect to redis: %w", err)
			}
		}

		components.Sessions, err = session.NewStore(components.Config, components.Redis, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to create session store: %w", err)
		}

		// Closing the store also closes the redis client
		components.addCleanup(func() error {
			components.Logger.Info("closing session store")
			return components.Sessions.Close()
		})
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"sessions", components.Config.Session.Backend,
		"redis", components.Redis != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error
// Useful for services that can't recover from initialization failure
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
