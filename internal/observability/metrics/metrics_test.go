package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("payment_method", "wallet"),
		attribute.String("buyer_id", "456"),
		attribute.String("outcome", "completed"),
	)
	require.Len(t, attrs, 2)
	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("payment_method"))
	assert.Contains(t, keys, attribute.Key("outcome"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordFulfillment(context.Background(), "completed")
	m.RecordWalletTransaction(context.Background(), "PURCHASE_DEBIT")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "digimart"}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordCheckoutOrders(context.Background(), "wallet", 2, false)
	m.RecordRefund(context.Background(), "FULL")
}

func TestCheckoutOrdersExportedWithModeLabel(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	m, err := New(Config{ServiceName: "digimart"}, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	m.RecordCheckoutOrders(ctx, " qris ", 2, true)
	m.RecordCheckoutOrders(ctx, "qris", 0, true)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var sum metricdata.Sum[int64]
	found := false
	for _, scope := range rm.ScopeMetrics {
		for _, md := range scope.Metrics {
			if md.Name == counterCheckoutOrders {
				sum, found = md.Data.(metricdata.Sum[int64])
			}
		}
	}
	require.True(t, found)
	require.Len(t, sum.DataPoints, 1)
	point := sum.DataPoints[0]
	assert.EqualValues(t, 2, point.Value)
	method, _ := point.Attributes.Value("payment_method")
	assert.Equal(t, "qris", method.AsString())
	mode, _ := point.Attributes.Value("outcome")
	assert.Equal(t, "sandbox", mode.AsString())
}
