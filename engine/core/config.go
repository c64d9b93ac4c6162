package core

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultStagingMinimumSize uint64 = 64
	DefaultStagingMaximumSize uint64 = 512
)

type LoggingConfig struct {
	Level        string `toml:"level"`
	ReportCaller bool   `toml:"report_caller"`
}

type StagingConfig struct {
	// Smallest staging buffer ever allocated, in bytes.
	MinimumSize uint64 `toml:"minimum_size"`
	// Buffers larger than this are destroyed on release instead of pooled.
	MaximumSize uint64 `toml:"maximum_size"`
}

type SessionConfig struct {
	// Reset viewport and scissor to the full attachment extents whenever a
	// framebuffer is bound.
	ViewportReset bool `toml:"viewport_reset"`
}

type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Staging StagingConfig `toml:"staging"`
	Session SessionConfig `toml:"session"`
}

func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:        "info",
			ReportCaller: true,
		},
		Staging: StagingConfig{
			MinimumSize: DefaultStagingMinimumSize,
			MaximumSize: DefaultStagingMaximumSize,
		},
		Session: SessionConfig{
			ViewportReset: true,
		},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Staging.MinimumSize == 0 {
		return fmt.Errorf("staging.minimum_size must be greater than zero")
	}
	if c.Staging.MaximumSize < c.Staging.MinimumSize {
		return fmt.Errorf("staging.maximum_size (%d) is smaller than staging.minimum_size (%d)", c.Staging.MaximumSize, c.Staging.MinimumSize)
	}
	return nil
}

// Apply pushes the logging section into the package logger.
func (c *Config) Apply() error {
	if err := SetLogLevel(c.Logging.Level); err != nil {
		return err
	}
	SetLogReportCaller(c.Logging.ReportCaller)
	return nil
}
