package bootstrap

import (
	"github.com/xka/flowmon/common/config"
	"github.com/xka/flowmon/common/logger"
)

// Option configures the bootstrap process
type Option func(*options)

type options struct {
	skipSessions  bool
	skipTelemetry bool
	customLogger  *logger.Logger
	customConfig  *config.Config
}

// WithoutSessions skips session store initialization
func WithoutSessions() Option {
	return func(o *options) {
		o.skipSessions = true
	}
}

// WithoutTelemetry skips telemetry initialization
func WithoutTelemetry() Option {
	return func(o *options) {
		o.skipTelemetry = true
	}
}

// WithCustomLogger uses a custom logger instead of creating one
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithCustomConfig uses a custom config instead of loading from env
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.customConfig = cfg
	}
}

func defaultOptions() *options {
	return &options{}
}
