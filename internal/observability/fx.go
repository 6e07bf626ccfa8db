package observability

import (
	"github.com/smallbiznis/digimart/internal/observability/logger"
	"github.com/smallbiznis/digimart/internal/observability/metrics"
	"github.com/smallbiznis/digimart/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the digimart zap logger, the OTLP tracer and meter
// providers, the marketplace counters used by checkout, fulfillment, wallet,
// refund, review and webhooks, and the prometheus HTTP and scheduler metrics.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		provideLoggerConfig,
		logger.New,
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(ensureTracingProvider),
	fx.Invoke(ensureSchedulerMetrics),
	fx.Invoke(logTelemetry),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

// logTelemetry records once per process which replica role is exporting where.
func logTelemetry(log *zap.Logger, cfg Config) {
	fields := []zap.Field{
		zap.String("mode", cfg.Mode),
		zap.String("env", cfg.Environment),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("otel_enabled", cfg.OtelEnabled),
	}
	if cfg.OtelEnabled {
		fields = append(fields,
			zap.String("otlp_endpoint", cfg.OtelExporterEndpoint),
			zap.String("otlp_protocol", cfg.OtelExporterProtocol),
			zap.Float64("sampling_ratio", cfg.OtelSamplingRatio),
		)
	}
	log.Info("telemetry configured", fields...)
}

func provideLoggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Mode:                cfg.Mode,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		Debug:               cfg.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
	}
}

func provideTracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
	}
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}

func ensureSchedulerMetrics(cfg metrics.Config) {
	metrics.SchedulerWithConfig(cfg)
}
