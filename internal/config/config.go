package config

import (
	"fmt"
	"time"
)

type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Transport TransportConfig `mapstructure:"transport"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Guess     GuessConfig     `mapstructure:"guess"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Server    ServerConfig    `mapstructure:"server"`
}

type LoggerConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type TransportConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	TLS                bool          `mapstructure:"tls"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	SOCKSProxy         string        `mapstructure:"socks_proxy"`
	BlockPrivate       bool          `mapstructure:"block_private"`
	MaxResponseBytes   int           `mapstructure:"max_response_bytes"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BurstSize         int           `mapstructure:"burst_size"`
	MinDelay          time.Duration `mapstructure:"min_delay"`
}

type GuessConfig struct {
	Concurrency            int    `mapstructure:"concurrency"`
	MaxConsecutiveFailures int    `mapstructure:"max_consecutive_failures"`
	Rechecks               int    `mapstructure:"rechecks"`
	HeaderName             string `mapstructure:"header_name"`
	InvalidValue           string `mapstructure:"invalid_value"`
	ValidValue             string `mapstructure:"valid_value"`
	CacheBuster            bool   `mapstructure:"cache_buster"`
	CatalogFile            string `mapstructure:"catalog_file"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	ExporterType string  `mapstructure:"exporter_type"`
	Endpoint     string  `mapstructure:"endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// APIKey guards /api/v1 when set.
	APIKey       string          `mapstructure:"api_key"`
	RunTimeout   time.Duration   `mapstructure:"run_timeout"`
	ClientLimits RateLimitConfig `mapstructure:"client_limits"`
	// AllowPrivate lets serve reach loopback and private addresses.
	// Without it serve always dials with transport.block_private on.
	AllowPrivate bool `mapstructure:"allow_private"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "console",
		},
		Transport: TransportConfig{
			Timeout:          10 * time.Second,
			ReadTimeout:      10 * time.Second,
			MaxResponseBytes: 1 << 20,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         5,
			MinDelay:          0,
		},
		Guess: GuessConfig{
			Concurrency:            1,
			MaxConsecutiveFailures: 5,
			Rechecks:               0,
			HeaderName:             "Content-Length",
			InvalidValue:           "z",
			ValidValue:             "0",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "clguess",
			ExporterType: "otlp",
			Endpoint:     "localhost:4318",
			SampleRate:   1.0,
		},
		Server: ServerConfig{
			Addr:       ":8080",
			RunTimeout: 10 * time.Minute,
			ClientLimits: RateLimitConfig{
				RequestsPerSecond: 1,
				BurstSize:         3,
			},
		},
	}
}

// ApplyDefaults fills zero values from Default.
func (c *Config) ApplyDefaults() {
	d := Default()

	if c.Logger.Level == "" {
		c.Logger.Level = d.Logger.Level
	}
	if c.Logger.Format == "" {
		c.Logger.Format = d.Logger.Format
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = d.Transport.Timeout
	}
	if c.Transport.ReadTimeout == 0 {
		c.Transport.ReadTimeout = d.Transport.ReadTimeout
	}
	if c.Transport.MaxResponseBytes == 0 {
		c.Transport.MaxResponseBytes = d.Transport.MaxResponseBytes
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = d.RateLimit.RequestsPerSecond
	}
	if c.RateLimit.BurstSize == 0 {
		c.RateLimit.BurstSize = d.RateLimit.BurstSize
	}
	if c.Guess.Concurrency == 0 {
		c.Guess.Concurrency = d.Guess.Concurrency
	}
	if c.Guess.MaxConsecutiveFailures == 0 {
		c.Guess.MaxConsecutiveFailures = d.Guess.MaxConsecutiveFailures
	}
	if c.Guess.HeaderName == "" {
		c.Guess.HeaderName = d.Guess.HeaderName
	}
	if c.Guess.InvalidValue == "" {
		c.Guess.InvalidValue = d.Guess.InvalidValue
	}
	if c.Guess.ValidValue == "" {
		c.Guess.ValidValue = d.Guess.ValidValue
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = d.Telemetry.ServiceName
	}
	if c.Telemetry.ExporterType == "" {
		c.Telemetry.ExporterType = d.Telemetry.ExporterType
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = d.Telemetry.SampleRate
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.RunTimeout == 0 {
		c.Server.RunTimeout = d.Server.RunTimeout
	}
	if c.Server.ClientLimits.RequestsPerSecond == 0 {
		c.Server.ClientLimits.RequestsPerSecond = d.Server.ClientLimits.RequestsPerSecond
	}
	if c.Server.ClientLimits.BurstSize == 0 {
		c.Server.ClientLimits.BurstSize = d.Server.ClientLimits.BurstSize
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}
	if c.Transport.Timeout < 0 || c.Transport.ReadTimeout < 0 {
		return fmt.Errorf("transport timeouts cannot be negative")
	}
	if c.Transport.MaxResponseBytes < 0 {
		return fmt.Errorf("transport.max_response_bytes cannot be negative")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second cannot be negative")
	}
	if c.RateLimit.BurstSize < 1 {
		return fmt.Errorf("rate_limit.burst_size must be at least 1")
	}
	if c.Guess.Concurrency < 1 {
		return fmt.Errorf("guess.concurrency must be at least 1")
	}
	if c.Guess.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("guess.max_consecutive_failures must be at least 1")
	}
	if c.Guess.Rechecks < 0 {
		return fmt.Errorf("guess.rechecks cannot be negative")
	}
	if c.Guess.InvalidValue == c.Guess.ValidValue {
		return fmt.Errorf("guess.invalid_value and guess.valid_value must differ")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0, 1]")
	}
	if c.Server.RunTimeout < 0 {
		return fmt.Errorf("server.run_timeout cannot be negative")
	}
	return nil
}
