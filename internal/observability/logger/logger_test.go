package logger

import (
	"context"
	"net/http"
	"testing"

	obscontext "github.com/smallbiznis/digimart/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql       string
		operation string
		table     string
	}{
		{`SELECT * FROM "orders" WHERE id = 1`, "SELECT", "orders"},
		{`UPDATE "wallets" SET balance = 1 WHERE user_id = 2 AND version = 3`, "UPDATE", "wallets"},
		{`INSERT INTO payment_events (id) VALUES (1) ON CONFLICT DO NOTHING`, "INSERT", "payment_events"},
		{`DELETE FROM order_items WHERE order_id = 9`, "DELETE", "order_items"},
		{``, "UNKNOWN", ""},
	}
	for _, tc := range cases {
		operation, table := describeSQL(tc.sql)
		assert.Equal(t, tc.operation, operation, tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
	}
}

func TestWithContextAddsOnlyKnownFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("bare")
	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "seller", "42")
	WithContext(ctx, base).Info("enriched")

	entries := logs.All()
	assert.Empty(t, entries[0].ContextMap())
	fields := entries[1].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "seller", fields["actor_type"])
	assert.Equal(t, "42", fields["actor_id"])
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/checkout", http.StatusInternalServerError, "internal_error"))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/metrics", http.StatusOK, ""))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/api/orders/:id/verify-payment", http.StatusTooManyRequests, "rate_limited"))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/webhooks/payments/:provider", http.StatusUnauthorized, "invalid_signature"))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/checkout", http.StatusConflict, "insufficient_stock"))
}
