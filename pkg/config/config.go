// Package config provides configuration loading for ragstore.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragstore/pkg/vectorstore"
)

// Config is the top-level ragstore configuration.
type Config struct {
	VectorStore vectorstore.Config `koanf:"vectorstore"`
	Logging     LoggingConfig      `koanf:"logging"`
	Telemetry   TelemetryConfig    `koanf:"telemetry"`
	Server      ServerConfig       `koanf:"server"`
}

// ServerConfig controls the HTTP API served by "ragstore serve".
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// MaxBodyBytes caps request bodies. Zero disables the limit.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig selects log level, encoding and outputs.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Sampling enables level-aware sampling below error.
	Sampling bool `koanf:"sampling"`

	// OTEL forwards log records to the OpenTelemetry log bridge.
	OTEL bool `koanf:"otel"`

	// Fields are attached to every entry.
	Fields map[string]string `koanf:"fields"`
}

// TelemetryConfig controls OTLP trace and metric export.
type TelemetryConfig struct {
	Enabled        bool   `koanf:"enabled"`
	Endpoint       string `koanf:"endpoint"`
	Protocol       string `koanf:"protocol"` // grpc or http/protobuf
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`
	Insecure       bool   `koanf:"insecure"`

	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64 `koanf:"sample_rate"`

	// AuthToken is sent to the collector as a bearer token.
	AuthToken Secret `koanf:"auth_token"`

	ExportInterval  Duration `koanf:"export_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		VectorStore: vectorstore.Config{
			Provider: vectorstore.ProviderMemory,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Sampling: true,
		},
		Telemetry: TelemetryConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			Protocol:        "grpc",
			ServiceName:     "ragstore",
			ServiceVersion:  "0.1.0",
			Insecure:        true,
			SampleRate:      1.0,
			ExportInterval:  Duration(15 * time.Second),
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9090,
			MaxBodyBytes:    8 << 20,
			ShutdownTimeout: Duration(10 * time.Second),
		},
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error
	if err := c.VectorStore.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("vectorstore: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	return errors.Join(errs...)
}

// ParseLevel converts Level to a zap level. "trace" maps to -2, one below debug.
func (c LoggingConfig) ParseLevel() (zapcore.Level, error) {
	level := strings.ToLower(strings.TrimSpace(c.Level))
	switch level {
	case "":
		return zapcore.InfoLevel, nil
	case "trace":
		return zapcore.Level(-2), nil
	}
	return zapcore.ParseLevel(level)
}

// Validate checks level and format.
func (c LoggingConfig) Validate() error {
	if _, err := c.ParseLevel(); err != nil {
		return fmt.Errorf("invalid level %q: %w", c.Level, err)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return fmt.Errorf("field %q must have a non-empty key and value", k)
		}
	}
	return nil
}

// Validate is a no-op when telemetry is disabled.
func (c TelemetryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return errors.New("service_name is required when telemetry is enabled")
	}
	switch c.Protocol {
	case "", "grpc", "http/protobuf":
	default:
		return fmt.Errorf("protocol must be 'grpc' or 'http/protobuf', got %q", c.Protocol)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0 and 1, got %f", c.SampleRate)
	}
	if c.ExportInterval.Duration() <= 0 {
		return errors.New("export_interval must be positive")
	}
	if c.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	return nil
}

// Validate checks the listen address and limits.
func (c ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative, got %d", c.MaxBodyBytes)
	}
	if c.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	return nil
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
