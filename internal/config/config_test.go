package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoggerConfig(t *testing.T) {
	config := LoggerConfig{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{"stdout", "stderr"},
	}

	assert.Equal(t, "debug", config.Level)
	assert.Equal(t, "json", config.Format)
	assert.Contains(t, config.OutputPaths, "stdout")
}

func TestDefault(t *testing.T) {
	config := Default()

	assert.NoError(t, config.Validate())
	assert.Equal(t, "Content-Length", config.Guess.HeaderName)
	assert.Equal(t, "z", config.Guess.InvalidValue)
	assert.Equal(t, "0", config.Guess.ValidValue)
	assert.Equal(t, 1, config.Guess.Concurrency)
	assert.Equal(t, 0, config.Guess.Rechecks)
	assert.Equal(t, 10*time.Second, config.Transport.Timeout)
}

func TestApplyDefaults(t *testing.T) {
	config := Config{
		Logger: LoggerConfig{Level: "debug"},
		Guess:  GuessConfig{Concurrency: 4},
	}
	config.ApplyDefaults()

	assert.Equal(t, "debug", config.Logger.Level, "explicit values are kept")
	assert.Equal(t, "console", config.Logger.Format)
	assert.Equal(t, 4, config.Guess.Concurrency)
	assert.Equal(t, 5, config.Guess.MaxConsecutiveFailures)
	assert.Equal(t, "Content-Length", config.Guess.HeaderName)
	assert.Equal(t, 1<<20, config.Transport.MaxResponseBytes)
	assert.Equal(t, 10*time.Minute, config.Server.RunTimeout)
	assert.Equal(t, 3, config.Server.ClientLimits.BurstSize)
	assert.NoError(t, config.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }},
		{"negative timeout", func(c *Config) { c.Transport.Timeout = -time.Second }},
		{"zero burst", func(c *Config) { c.RateLimit.BurstSize = 0 }},
		{"zero concurrency", func(c *Config) { c.Guess.Concurrency = 0 }},
		{"zero failure threshold", func(c *Config) { c.Guess.MaxConsecutiveFailures = 0 }},
		{"negative rechecks", func(c *Config) { c.Guess.Rechecks = -1 }},
		{"equal probe values", func(c *Config) { c.Guess.ValidValue = c.Guess.InvalidValue }},
		{"sample rate above one", func(c *Config) { c.Telemetry.SampleRate = 1.5 }},
		{"negative run timeout", func(c *Config) { c.Server.RunTimeout = -time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(&config)
			assert.Error(t, config.Validate())
		})
	}
}
