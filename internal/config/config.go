// Package config loads ucrd configuration from a YAML file and environment
// variables.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete ucrd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
	Reasoning     ReasoningConfig     `koanf:"reasoning"`
	Council       CouncilConfig       `koanf:"council"`
	NATS          NATSConfig          `koanf:"nats"`
	Store         StoreConfig         `koanf:"store"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	TLSSkipVerify   bool    `koanf:"tls_skip_verify"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ReasoningConfig configures the OpenAI-compatible reasoning endpoint.
type ReasoningConfig struct {
	BaseURL     string  `koanf:"base_url"`
	Model       string  `koanf:"model"`
	APIKey      Secret  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
	RateLimit   float64 `koanf:"rate_limit"`
	Burst       int     `koanf:"burst"`
	MaxRetries  int     `koanf:"max_retries"`
}

// CouncilConfig configures council reasoning.
type CouncilConfig struct {
	CatalogPath      string   `koanf:"catalog_path"`
	CallTimeout      Duration `koanf:"call_timeout"`
	SynthesisTimeout Duration `koanf:"synthesis_timeout"`
}

// NATSConfig configures the execution record sink.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// StoreConfig configures where configurations are read from. An empty root
// selects the in-memory store.
type StoreConfig struct {
	Root string `koanf:"root"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	switch c.Observability.Protocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("observability protocol must be grpc or http/protobuf, got %q", c.Observability.Protocol)
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return fmt.Errorf("observability sample_rate must be between 0 and 1, got %v", c.Observability.SampleRate)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be json or console, got %q", c.Logging.Format)
	}
	if c.Reasoning.Temperature < 0 || c.Reasoning.Temperature > 2 {
		return fmt.Errorf("reasoning temperature must be between 0 and 2, got %v", c.Reasoning.Temperature)
	}
	if c.Reasoning.MaxRetries < 0 {
		return errors.New("reasoning max_retries cannot be negative")
	}
	if c.Council.CallTimeout.Duration() <= 0 || c.Council.SynthesisTimeout.Duration() <= 0 {
		return errors.New("council timeouts must be positive")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats url required when nats is enabled")
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "ucrd"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Reasoning.BaseURL == "" {
		cfg.Reasoning.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Reasoning.Model == "" {
		cfg.Reasoning.Model = "gpt-4o-mini"
	}
	if cfg.Reasoning.Temperature == 0 {
		cfg.Reasoning.Temperature = 0.3
	}
	if cfg.Reasoning.MaxTokens == 0 {
		cfg.Reasoning.MaxTokens = 2048
	}
	if cfg.Reasoning.RateLimit == 0 {
		cfg.Reasoning.RateLimit = 50.0 / 60.0
	}
	if cfg.Reasoning.Burst == 0 {
		cfg.Reasoning.Burst = 5
	}
	if cfg.Reasoning.MaxRetries == 0 {
		cfg.Reasoning.MaxRetries = 3
	}

	if cfg.Council.CallTimeout == 0 {
		cfg.Council.CallTimeout = Duration(45 * time.Second)
	}
	if cfg.Council.SynthesisTimeout == 0 {
		cfg.Council.SynthesisTimeout = Duration(60 * time.Second)
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "ucr.executions"
	}
}
