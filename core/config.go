package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables for the discovery and messaging subsystem.
// Resolution order, lowest to highest precedence: defaults, environment
// variables (AGENTMESH_*), functional options.
type Config struct {
	// Core identity
	Name string `yaml:"name" json:"name"`
	Port int    `yaml:"port" json:"port"`

	// RegistryEndpoint switches discovery to delegated mode when set.
	RegistryEndpoint string `yaml:"registry_endpoint" json:"registry_endpoint"`

	// RedisURL switches discovery/task storage to the durable Redis
	// variant when set.
	RedisURL string `yaml:"redis_url" json:"redis_url"`

	// Namespace prefixes Redis keys.
	Namespace string `yaml:"namespace" json:"namespace"`

	// RegistryTTL is how long a registration lives without renewal.
	RegistryTTL time.Duration `yaml:"registry_ttl" json:"registry_ttl"`

	// CacheTTL bounds the age of cached connection handles.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// RequestTimeout bounds each transport attempt.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// MaxRetries is the default per-send delivery budget; an envelope's
	// max_retries overrides it.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// HistorySize caps the send-record ring buffer.
	HistorySize int `yaml:"history_size" json:"history_size"`

	// Logging
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
}

// Option configures a Config
type Option func(*Config) error

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		Namespace:      "agentmesh",
		RegistryTTL:    DefaultRegistryTTL,
		CacheTTL:       300 * time.Second,
		RequestTimeout: 30 * time.Second,
		MaxRetries:     3,
		HistorySize:    1000,
		LogLevel:       "INFO",
	}
}

// NewConfig creates a configuration from defaults, environment and options.
func NewConfig(opts ...Option) (*Config, error) {
	config := DefaultConfig()
	config.applyEnvironment()

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects configurations the subsystem cannot run with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfiguration, c.Port)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be at least 1", ErrInvalidConfiguration)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("%w: history_size must be at least 1", ErrInvalidConfiguration)
	}
	if c.RegistryTTL <= 0 || c.CacheTTL <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: TTLs and timeouts must be positive", ErrInvalidConfiguration)
	}
	return nil
}

// applyEnvironment loads AGENTMESH_* environment overrides.
func (c *Config) applyEnvironment() {
	if v := os.Getenv("AGENTMESH_AGENT_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("AGENTMESH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("AGENTMESH_REGISTRY_ENDPOINT"); v != "" {
		c.RegistryEndpoint = v
	}
	if v := os.Getenv("AGENTMESH_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("AGENTMESH_NAMESPACE"); v != "" {
		c.Namespace = v
	}
	if v := os.Getenv("AGENTMESH_REGISTRY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RegistryTTL = d
		}
	}
	if v := os.Getenv("AGENTMESH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CacheTTL = d
		}
	}
	if v := os.Getenv("AGENTMESH_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := os.Getenv("AGENTMESH_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("AGENTMESH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("AGENTMESH_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
}

// WithName sets the agent name
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithPort sets the HTTP port
func WithPort(port int) Option {
	return func(c *Config) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidConfiguration, port)
		}
		c.Port = port
		return nil
	}
}

// WithRegistryEndpoint switches discovery to a remote registry.
func WithRegistryEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.RegistryEndpoint = endpoint
		return nil
	}
}

// WithRedisURL switches storage to the durable Redis variant.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.RedisURL = url
		return nil
	}
}

// WithNamespace sets the Redis key namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) error {
		c.Namespace = namespace
		return nil
	}
}

// WithRegistryTTL sets the registration TTL.
func WithRegistryTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		c.RegistryTTL = ttl
		return nil
	}
}

// WithCacheTTL sets the connection cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		c.CacheTTL = ttl
		return nil
	}
}

// WithRequestTimeout sets the per-attempt transport timeout.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.RequestTimeout = timeout
		return nil
	}
}

// WithDefaultMaxRetries sets the default per-send delivery budget. An
// envelope's own max_retries takes precedence.
func WithDefaultMaxRetries(n int) Option {
	return func(c *Config) error {
		c.MaxRetries = n
		return nil
	}
}

// WithHistorySize caps the send-record ring buffer.
func WithHistorySize(n int) Option {
	return func(c *Config) error {
		c.HistorySize = n
		return nil
	}
}

// WithLogLevel sets the log level
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.LogLevel = level
		return nil
	}
}

// WithConfigFile loads settings from a YAML or JSON file. File values
// override whatever was set before this option runs.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			return fmt.Errorf("%w: unsupported config file type %s", ErrInvalidConfiguration, ext)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}

		// yaml.v3 handles JSON as a YAML subset.
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
		return nil
	}
}

// NewRegistryFromConfig selects the registry implementation: Redis when
// RedisURL is set, delegated HTTP when RegistryEndpoint is set, embedded
// otherwise.
func NewRegistryFromConfig(config *Config, logger Logger) (Registry, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}

	switch {
	case config.RedisURL != "":
		registry, err := NewRedisRegistryWithNamespace(config.RedisURL, config.Namespace)
		if err != nil {
			return nil, err
		}
		registry.SetTTL(config.RegistryTTL)
		registry.SetLogger(logger)
		return registry, nil
	case config.RegistryEndpoint != "":
		registry := NewHTTPRegistry(config.RegistryEndpoint)
		registry.SetLogger(logger)
		return registry, nil
	default:
		registry := NewLocalRegistryWithTTL(config.RegistryTTL)
		registry.SetLogger(logger)
		return registry, nil
	}
}
