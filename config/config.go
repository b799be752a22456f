// Package config loads the YAML configuration shared by the nlflow server and
// CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/nlflow/ai"
)

// Config is the root configuration document.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Parser  ParserConfig  `json:"parser" yaml:"parser"`
	AI      AIConfig      `json:"ai" yaml:"ai"`
	Cache   CacheConfig   `json:"cache" yaml:"cache"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	// RateLimitPerMinute caps requests per client IP. Zero disables it.
	RateLimitPerMinute int           `json:"rateLimitPerMinute" yaml:"rateLimitPerMinute"`
	ReadTimeout        time.Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout       time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
	ShutdownTimeout    time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
	// MaxBodyBytes bounds the size of a parse request.
	MaxBodyBytes int64 `json:"maxBodyBytes" yaml:"maxBodyBytes"`
}

// ParserConfig configures pattern detection.
type ParserConfig struct {
	RecursiveBranches bool `json:"recursiveBranches" yaml:"recursiveBranches"`
}

// AIConfig configures the model fallback.
type AIConfig struct {
	// Enabled turns the model fallback on. When false every unmatched
	// instruction degrades to the pattern result.
	Enabled           bool               `json:"enabled" yaml:"enabled"`
	Provider          string             `json:"provider" yaml:"provider"`
	RequestsPerMinute int                `json:"requestsPerMinute" yaml:"requestsPerMinute"`
	MaxTokens         int                `json:"maxTokens" yaml:"maxTokens"`
	Temperature       float64            `json:"temperature" yaml:"temperature"`
	Anthropic         AnthropicConfig    `json:"anthropic" yaml:"anthropic"`
	Copilot           CopilotConfig      `json:"copilot" yaml:"copilot"`
	Guardrails        ai.GuardrailConfig `json:"guardrails" yaml:"guardrails"`
	// CallTimeout bounds one upstream model call, which may be shared by
	// several concurrent identical requests.
	CallTimeout time.Duration `json:"callTimeout" yaml:"callTimeout"`
}

// AnthropicConfig configures the Anthropic Messages API client.
type AnthropicConfig struct {
	APIKey  string        `json:"apiKey" yaml:"apiKey"`
	Model   string        `json:"model" yaml:"model"`
	BaseURL string        `json:"baseURL" yaml:"baseURL"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// CopilotConfig configures the Copilot SDK client. An empty CLIPath leaves
// the provider unregistered.
type CopilotConfig struct {
	CLIPath string `json:"cliPath" yaml:"cliPath"`
	Model   string `json:"model" yaml:"model"`
}

// CacheConfig selects where model replies are cached.
type CacheConfig struct {
	Backend string        `json:"backend" yaml:"backend"`
	TTL     time.Duration `json:"ttl" yaml:"ttl"`
	MaxSize int           `json:"maxSize" yaml:"maxSize"`
	Redis   RedisConfig   `json:"redis" yaml:"redis"`
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

// StoreConfig selects where saved workflows live.
type StoreConfig struct {
	Backend  string         `json:"backend" yaml:"backend"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
}

// PostgresConfig configures the PostgreSQL store backend.
type PostgresConfig struct {
	URL      string `json:"url" yaml:"url"`
	MaxConns int32  `json:"maxConns" yaml:"maxConns"`
	Migrate  bool   `json:"migrate" yaml:"migrate"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	ServiceName string  `json:"serviceName" yaml:"serviceName"`
	Insecure    bool    `json:"insecure" yaml:"insecure"`
	SampleRate  float64 `json:"sampleRate" yaml:"sampleRate"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Path      string `json:"path" yaml:"path"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Cache and store backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":8080",
			RateLimitPerMinute: 120,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       90 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			MaxBodyBytes:       1 << 20,
		},
		AI: AIConfig{
			Enabled:           true,
			Provider:          string(ai.ProviderAuto),
			RequestsPerMinute: 60,
			MaxTokens:         2048,
			Temperature:       0.2,
			Anthropic:         AnthropicConfig{Timeout: 60 * time.Second},
			Guardrails:        ai.DefaultGuardrailConfig(),
			CallTimeout:       2 * time.Minute,
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			TTL:     time.Hour,
			MaxSize: 1000,
			Redis:   RedisConfig{Address: "localhost:6379", Prefix: "nlflow:"},
		},
		Store: StoreConfig{Backend: StoreMemory},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "nlflow",
			Insecure:    true,
			SampleRate:  1.0,
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics", Namespace: "nlflow"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadFromFile reads a YAML file over the defaults. ${VAR} references are
// expanded from the environment before parsing.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	switch ai.Provider(c.AI.Provider) {
	case ai.ProviderAuto, ai.ProviderAnthropic, ai.ProviderCopilot:
	default:
		errs = append(errs, fmt.Errorf("ai.provider: unknown provider %q", c.AI.Provider))
	}
	if c.AI.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("ai.requestsPerMinute must not be negative"))
	}
	if c.AI.CallTimeout < 0 {
		errs = append(errs, errors.New("ai.callTimeout must not be negative"))
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 1 {
		errs = append(errs, fmt.Errorf("ai.temperature must be within [0, 1], got %v", c.AI.Temperature))
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.Cache.Redis.Address == "" {
			errs = append(errs, errors.New("cache.redis.address is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Store.Postgres.URL == "" {
			errs = append(errs, errors.New("store.postgres.url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}

	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("server.rateLimitPerMinute must not be negative"))
	}
	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		errs = append(errs, fmt.Errorf("tracing.sampleRate must be within [0, 1], got %v", c.Tracing.SampleRate))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
