package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JustinOng/esp-32-audio/internal/protocol"
)

// Config represents the complete sender configuration
type Config struct {
	Sender  SenderConfig  `yaml:"sender"`
	Reader  ReaderConfig  `yaml:"reader"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// SenderConfig contains datagram fragmentation parameters
type SenderConfig struct {
	ChunkSize       int    `yaml:"chunk_size"`        // payload bytes per datagram
	MaxPayloadBytes uint32 `yaml:"max_payload_bytes"` // 0 sends the whole data chunk
	WriteTimeout    int    `yaml:"write_timeout"`     // seconds, 0 disables the deadline
	HexDump         bool   `yaml:"hex_dump"`
}

// ReaderConfig contains RIFF chunk reader options
type ReaderConfig struct {
	PadOddChunks bool `yaml:"pad_odd_chunks"`
}

// MetricsConfig contains the optional status/metrics HTTP server configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Linger  int    `yaml:"linger"` // seconds to keep serving after the transfer
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration that works without a config file
func Default() *Config {
	return &Config{
		Sender: SenderConfig{
			ChunkSize: protocol.DefaultFragmentSize,
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1",
			Port:    9464,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the configuration file on top of the defaults and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of every configuration section
func (c *Config) Validate() error {
	if err := c.Sender.Validate(); err != nil {
		return fmt.Errorf("sender config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates sender configuration
func (s *SenderConfig) Validate() error {
	if s.ChunkSize < 1 || s.ChunkSize > protocol.MaxFragmentSize {
		return fmt.Errorf("chunk_size must be between 1 and %d bytes, got %d", protocol.MaxFragmentSize, s.ChunkSize)
	}

	if s.WriteTimeout < 0 {
		return fmt.Errorf("write_timeout cannot be negative, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates metrics server configuration
func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", m.Port)
	}

	if m.Address == "" {
		return fmt.Errorf("address cannot be empty when metrics are enabled")
	}

	if m.Linger < 0 {
		return fmt.Errorf("linger cannot be negative, got %d", m.Linger)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetWriteTimeout returns the per-datagram write deadline as a time.Duration
func (s *SenderConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetLinger returns how long the status server outlives the transfer
func (m *MetricsConfig) GetLinger() time.Duration {
	return time.Duration(m.Linger) * time.Second
}
