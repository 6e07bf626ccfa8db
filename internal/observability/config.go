package observability

import (
	"strings"

	"github.com/smallbiznis/digimart/internal/config"
)

// Config is the telemetry view of the process configuration.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	// Mode tags every log line so api and scheduler replicas can be told apart.
	Mode string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "digimart"
	}
	logLevel := cfg.Telemetry.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	// http/protobuf and http/json both select the http exporter
	protocol := "grpc"
	if strings.HasPrefix(cfg.Telemetry.OTLPProtocol, "http") {
		protocol = "http"
	}
	ratio := cfg.Telemetry.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		Mode:                 cfg.Mode,
		LogLevel:             logLevel,
		LogFormat:            cfg.Telemetry.LogFormat,
		OtelEnabled:          cfg.Telemetry.OtelEnabled,
		OtelExporterEndpoint: cfg.Telemetry.OTLPEndpoint,
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug turns on request body logging and stack traces.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
