package observability

import (
	"testing"

	"github.com/smallbiznis/digimart/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizesTelemetry(t *testing.T) {
	cfg := config.Config{
		Mode:        config.ModeScheduler,
		Environment: " production ",
		Telemetry: config.TelemetryConfig{
			OTLPProtocol:  "http/protobuf",
			SamplingRatio: 3,
		},
	}

	got := LoadConfig(cfg)

	assert.Equal(t, "digimart", got.ServiceName)
	assert.Equal(t, "production", got.Environment)
	assert.Equal(t, "info", got.LogLevel)
	assert.Equal(t, "http", got.OtelExporterProtocol)
	assert.Equal(t, 0.1, got.OtelSamplingRatio)
	assert.Equal(t, config.ModeScheduler, got.Mode)
	assert.False(t, got.Debug())
}

func TestLoadConfigDefaultsToGRPC(t *testing.T) {
	got := LoadConfig(config.Config{Telemetry: config.TelemetryConfig{OTLPProtocol: "", LogLevel: "debug"}})

	assert.Equal(t, "grpc", got.OtelExporterProtocol)
	assert.True(t, got.Debug())
}
