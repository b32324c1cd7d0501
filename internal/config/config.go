package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// WarrenConfig represents the top-level warren.yml configuration
type WarrenConfig struct {
	Version   string           `yaml:"version"`
	Service   ServiceConfig    `yaml:"service"`
	Broker    BrokerConfig     `yaml:"broker"`
	HTTP      *HTTPConfig      `yaml:"http,omitempty"`
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// ServiceConfig identifies the service and sizes its worker pool
type ServiceConfig struct {
	Name       string `yaml:"name"`
	MaxWorkers int    `yaml:"max_workers,omitempty"` // Default: 10
}

// BrokerConfig specifies how to reach the Redis broker
type BrokerConfig struct {
	URL       string `yaml:"url"`                 // Overridden by WARREN_BROKER_URL
	Namespace string `yaml:"namespace,omitempty"` // Default: "warren"
}

// HTTPConfig specifies where web entrypoints listen
type HTTPConfig struct {
	Address string `yaml:"address"` // e.g. ":8000"
}

// TelemetryConfig specifies trace export and payload capture
type TelemetryConfig struct {
	Endpoint             string        `yaml:"endpoint,omitempty"` // OTLP/HTTP collector, overridden by WARREN_OTLP_ENDPOINT
	SendHeaders          bool          `yaml:"send_headers,omitempty"`
	SendRequestPayloads  bool          `yaml:"send_request_payloads,omitempty"`
	SendResponsePayloads bool          `yaml:"send_response_payloads,omitempty"`
	TruncateMaxLength    int           `yaml:"truncate_max_length,omitempty"` // Default: 200
	FlushTimeout         time.Duration `yaml:"flush_timeout,omitempty"`       // Default: 5s
}

// Validate performs strict validation on the configuration and applies
// defaults
func (c *WarrenConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: service name
	if c.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}

	if c.Service.MaxWorkers == 0 {
		c.Service.MaxWorkers = 10
	}
	if c.Service.MaxWorkers < 1 {
		return fmt.Errorf("service.max_workers must be >= 1, got %d", c.Service.MaxWorkers)
	}

	// Required: broker URL (unless supplied via environment)
	if c.Broker.URL == "" && os.Getenv("WARREN_BROKER_URL") == "" {
		return fmt.Errorf("broker.url is required (or set WARREN_BROKER_URL)")
	}
	if c.Broker.Namespace == "" {
		c.Broker.Namespace = "warren"
	}

	if c.HTTP != nil && c.HTTP.Address == "" {
		return fmt.Errorf("http.address is required when the http section is present")
	}

	if c.Telemetry != nil {
		if c.Telemetry.TruncateMaxLength == 0 {
			c.Telemetry.TruncateMaxLength = 200
		}
		if c.Telemetry.TruncateMaxLength < 0 {
			return fmt.Errorf("telemetry.truncate_max_length must be >= 0, got %d", c.Telemetry.TruncateMaxLength)
		}
		if c.Telemetry.FlushTimeout == 0 {
			c.Telemetry.FlushTimeout = 5 * time.Second
		}
	}

	return nil
}

// BrokerURL returns the broker URL, preferring the WARREN_BROKER_URL
// environment variable over the file value.
func (c *WarrenConfig) BrokerURL() string {
	if url := os.Getenv("WARREN_BROKER_URL"); url != "" {
		return url
	}
	return c.Broker.URL
}

// TelemetryEndpoint returns the OTLP endpoint, preferring the
// WARREN_OTLP_ENDPOINT environment variable over the file value. Empty
// means telemetry export is disabled.
func (c *WarrenConfig) TelemetryEndpoint() string {
	if endpoint := os.Getenv("WARREN_OTLP_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	if c.Telemetry == nil {
		return ""
	}
	return c.Telemetry.Endpoint
}

// HTTPAddress returns the configured HTTP listen address, or empty when no
// web entrypoints are configured.
func (c *WarrenConfig) HTTPAddress() string {
	if c.HTTP == nil {
		return ""
	}
	return c.HTTP.Address
}

// Load reads and validates warren.yml from the specified path
func Load(path string) (*WarrenConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config WarrenConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
