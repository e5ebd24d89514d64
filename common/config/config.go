package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config holds all service configuration
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	WorkerManager WorkerManagerConfig `yaml:"worker_manager"`
	Polling       PollingConfig       `yaml:"polling"`
	Session       SessionConfig       `yaml:"session"`
	Redis         RedisConfig         `yaml:"redis"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Simulator     SimulatorConfig     `yaml:"simulator"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// WorkerManagerConfig locates the remote execution engine
type WorkerManagerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	SSL            bool          `yaml:"ssl"`
	APIVersion     string        `yaml:"api_version"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// PollingConfig tunes the execution poller
type PollingConfig struct {
	Interval               time.Duration `yaml:"interval"`
	MaxBackoff             time.Duration `yaml:"max_backoff"`
	FetchTimeout           time.Duration `yaml:"fetch_timeout"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	Force                  bool          `yaml:"force"`
}

// Session store backends
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// SessionConfig selects where current-session records live
type SessionConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnableTracing bool   `yaml:"enable_tracing"`
	TraceFile     string `yaml:"trace_file"`
	Version       string `yaml:"version"`
}

// RateLimitConfig caps per-editor run submissions and refreshes
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int64         `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// SimulatorConfig tunes the local engine simulator
type SimulatorConfig struct {
	Step         time.Duration `yaml:"step"`
	TimeScale    float64       `yaml:"time_scale"`
	ResolveHosts bool          `yaml:"resolve_hosts"`
}

// Load loads configuration from defaults, an optional YAML file named by
// FLOWMON_CONFIG and environment variables, in increasing precedence.
func Load(serviceName string) (*Config, error) {
	cfg := Defaults(serviceName)

	if path := os.Getenv("FLOWMON_CONFIG"); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(fileCfg, cfg); err != nil {
			return nil, fmt.Errorf("failed to merge config defaults: %w", err)
		}
		cfg = fileCfg
	}

	applyEnv(cfg)

	return cfg, cfg.Validate()
}

// LoadFile reads a YAML config file without applying defaults
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration
func Defaults(serviceName string) *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        8081,
			Environment: "development",
			LogLevel:    "info",
			LogFormat:   "text",
		},
		WorkerManager: WorkerManagerConfig{
			Host:           "localhost",
			Port:           8080,
			APIVersion:     "v1",
			RequestTimeout: 30 * time.Second,
		},
		Polling: PollingConfig{
			Interval:               500 * time.Millisecond,
			MaxBackoff:             30 * time.Second,
			FetchTimeout:           10 * time.Second,
			MaxConsecutiveFailures: 5,
		},
		Session: SessionConfig{
			Backend: SessionBackendMemory,
			TTL:     24 * time.Hour,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Telemetry: TelemetryConfig{
			Version: "dev",
		},
		Simulator: SimulatorConfig{
			Step:      500 * time.Millisecond,
			TimeScale: 1,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 30,
			Window:   time.Minute,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Service.Port = getEnvInt("PORT", cfg.Service.Port)
	cfg.Service.Environment = getEnv("ENVIRONMENT", cfg.Service.Environment)
	cfg.Service.LogLevel = getEnv("LOG_LEVEL", cfg.Service.LogLevel)
	cfg.Service.LogFormat = getEnv("LOG_FORMAT", cfg.Service.LogFormat)

	// Same variable names the editor front-end used for its HTTP client
	cfg.WorkerManager.Host = getEnv("WORKER_MANAGER_HOST", cfg.WorkerManager.Host)
	cfg.WorkerManager.Port = getEnvInt("WORKER_MANAGER_PORT", cfg.WorkerManager.Port)
	cfg.WorkerManager.SSL = getEnvBool("SSL_ON", cfg.WorkerManager.SSL)
	cfg.WorkerManager.APIVersion = strings.ToLower(getEnv("API_VERSION", cfg.WorkerManager.APIVersion))
	cfg.WorkerManager.RequestTimeout = getEnvDuration("WORKER_MANAGER_TIMEOUT", cfg.WorkerManager.RequestTimeout)

	cfg.Polling.Interval = getEnvDuration("POLL_INTERVAL", cfg.Polling.Interval)
	cfg.Polling.MaxBackoff = getEnvDuration("POLL_MAX_BACKOFF", cfg.Polling.MaxBackoff)
	cfg.Polling.FetchTimeout = getEnvDuration("POLL_FETCH_TIMEOUT", cfg.Polling.FetchTimeout)
	cfg.Polling.MaxConsecutiveFailures = getEnvInt("POLL_MAX_FAILURES", cfg.Polling.MaxConsecutiveFailures)
	cfg.Polling.Force = getEnvBool("POLL_FORCE", cfg.Polling.Force)

	cfg.Session.Backend = getEnv("SESSION_BACKEND", cfg.Session.Backend)
	cfg.Session.TTL = getEnvDuration("SESSION_TTL", cfg.Session.TTL)

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnvInt("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)

	cfg.Telemetry.EnableTracing = getEnvBool("ENABLE_TRACING", cfg.Telemetry.EnableTracing)
	cfg.Telemetry.TraceFile = getEnv("TRACE_FILE", cfg.Telemetry.TraceFile)

	cfg.Simulator.Step = getEnvDuration("SIM_STEP", cfg.Simulator.Step)
	cfg.Simulator.TimeScale = getEnvFloat("SIM_TIME_SCALE", cfg.Simulator.TimeScale)
	cfg.Simulator.ResolveHosts = getEnvBool("SIM_RESOLVE_HOSTS", cfg.Simulator.ResolveHosts)

	cfg.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.Requests = int64(getEnvInt("RATE_LIMIT_REQUESTS", int(cfg.RateLimit.Requests)))
	cfg.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", cfg.RateLimit.Window)
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.WorkerManager.Host == "" {
		return fmt.Errorf("worker manager host is required")
	}

	if c.WorkerManager.Port < 1 || c.WorkerManager.Port > 65535 {
		return fmt.Errorf("invalid worker manager port: %d", c.WorkerManager.Port)
	}

	if c.Polling.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Polling.Interval)
	}

	if c.Polling.MaxBackoff < c.Polling.Interval {
		return fmt.Errorf("max_backoff must be >= interval")
	}

	if c.Polling.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("max_consecutive_failures must be >= 1")
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit needs requests >= 1 and a positive window")
	}

	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("unknown session backend: %s", c.Session.Backend)
	}

	return nil
}

// WorkerManagerURL returns the base URL of the worker manager API
func (c *Config) WorkerManagerURL() string {
	protocol := "http"
	if c.WorkerManager.SSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s:%d/%s",
		protocol,
		c.WorkerManager.Host,
		c.WorkerManager.Port,
		c.WorkerManager.APIVersion,
	)
}

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
