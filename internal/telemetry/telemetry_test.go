package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/warren/internal/config"
)

func TestSetup_NoEndpoint(t *testing.T) {
	cfg := &config.WarrenConfig{
		Version: "1.0",
		Service: config.ServiceConfig{Name: "orders"},
		Broker:  config.BrokerConfig{URL: "redis://localhost:6379/0"},
	}
	require.NoError(t, cfg.Validate())

	instrumentor, shutdown, err := Setup(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, instrumentor)
	assert.NoError(t, shutdown(context.Background()))
}

func TestExporterOptions(t *testing.T) {
	t.Run("accepts http URL", func(t *testing.T) {
		opts, err := exporterOptions("http://localhost:4318")
		require.NoError(t, err)
		assert.NotEmpty(t, opts)
	})

	t.Run("accepts https URL", func(t *testing.T) {
		opts, err := exporterOptions("https://collector.example.com:4318/v1/traces")
		require.NoError(t, err)
		assert.NotEmpty(t, opts)
	})

	t.Run("accepts bare host:port", func(t *testing.T) {
		opts, err := exporterOptions("localhost:4318")
		require.NoError(t, err)
		assert.NotEmpty(t, opts)
	})

	t.Run("rejects unknown scheme", func(t *testing.T) {
		_, err := exporterOptions("grpc://localhost:4317")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported scheme")
	})
}
