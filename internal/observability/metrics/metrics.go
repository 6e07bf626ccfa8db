package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes the marketplace counters. A nil *Metrics records nothing.
type Metrics struct {
	counters map[string]metric.Int64Counter
}

const (
	counterCheckoutOrders  = "digimart_checkout_orders_total"
	counterFulfillments    = "digimart_fulfillment_total"
	counterWalletTx        = "digimart_wallet_transactions_total"
	counterReconMatches    = "digimart_reconciliation_matches_total"
	counterRefunds         = "digimart_refunds_total"
	counterReviewDecisions = "digimart_review_decisions_total"
	counterPaymentEvents   = "digimart_payment_events_total"
)

var counterHelp = map[string]string{
	counterCheckoutOrders:  "Orders created by checkout, by payment method and live or sandbox.",
	counterFulfillments:    "Fulfillment attempts by outcome.",
	counterWalletTx:        "Wallet ledger entries by transaction type.",
	counterReconMatches:    "External transfers matched by reconciliation, by queue.",
	counterRefunds:         "Processed refunds by type.",
	counterReviewDecisions: "Admin review decisions by action.",
	counterPaymentEvents:   "Payment webhook events by provider and type.",
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}
	if log != nil {
		log.Info("otlp metrics enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Duration("interval", exportInterval),
		)
	}
	return provider, nil
}

const exportInterval = 10 * time.Second

// New creates the marketplace counters on the given provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "digimart"
	}
	meter := provider.Meter(name)

	m := &Metrics{counters: make(map[string]metric.Int64Counter, len(counterHelp))}
	for counter, help := range counterHelp {
		instrument, err := meter.Int64Counter(counter, metric.WithDescription(help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", counter, err)
		}
		m.counters[counter] = instrument
	}
	return m, nil
}

func (m *Metrics) add(ctx context.Context, counter string, n int64, attrs ...attribute.KeyValue) {
	if m == nil || n <= 0 {
		return
	}
	instrument, ok := m.counters[counter]
	if !ok {
		return
	}
	instrument.Add(ctx, n, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

// RecordCheckoutOrders counts orders created by a checkout.
func (m *Metrics) RecordCheckoutOrders(ctx context.Context, method string, count int, sandbox bool) {
	mode := "live"
	if sandbox {
		mode = "sandbox"
	}
	m.add(ctx, counterCheckoutOrders, int64(count), label("payment_method", method), label("outcome", mode))
}

// RecordFulfillment counts fulfillment outcomes (completed, under_review, deferred, noop, failed).
func (m *Metrics) RecordFulfillment(ctx context.Context, outcome string) {
	m.add(ctx, counterFulfillments, 1, label("outcome", outcome))
}

func (m *Metrics) RecordWalletTransaction(ctx context.Context, txType string) {
	m.add(ctx, counterWalletTx, 1, label("tx_type", txType))
}

// RecordReconciliationMatch counts matched external transfers; source is deposit or order.
func (m *Metrics) RecordReconciliationMatch(ctx context.Context, source string) {
	m.add(ctx, counterReconMatches, 1, label("source_type", source))
}

func (m *Metrics) RecordRefund(ctx context.Context, refundType string) {
	m.add(ctx, counterRefunds, 1, label("refund_type", refundType))
}

func (m *Metrics) RecordReviewDecision(ctx context.Context, action string) {
	m.add(ctx, counterReviewDecisions, 1, label("action", action))
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	m.add(ctx, counterPaymentEvents, 1, label("provider", provider), label("event_type", eventType))
}

// newExporter expects the protocol already normalized to grpc or http.
func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch protocol {
	case "http":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "grpc", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}

// Only these label keys reach exporters; ids and emails never do.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":       {},
	"status_code":    {},
	"payment_method": {},
	"provider":       {},
	"event_type":     {},
	"source_type":    {},
	"tx_type":        {},
	"refund_type":    {},
	"outcome":        {},
	"action":         {},
	"reason":         {},
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := attrs[:0:0]
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
