package cryptotransfer

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiateReturnsDepositInstructions(t *testing.T) {
	providers := config.ProvidersConfig{CryptoAddresses: map[string]string{"USDT:TRX": "TXaddr"}}
	adapter := New(providers, config.StaticPlatform(config.DefaultPlatformConfig()))

	got, err := adapter.Initiate(context.Background(), paymentdomain.Intent{
		CheckoutGroupID: 5,
		Amount:          decimal.RequireFromString("31.40"),
		MemoToken:       "ABCD2345",
	})
	require.NoError(t, err)
	assert.False(t, got.Settled)
	details := got.Details.(orderdomain.CryptoTransferDetails)
	assert.Equal(t, "TXaddr", details.Address)
	assert.Equal(t, "USDT", details.Coin)
	assert.Equal(t, "TRX", details.Network)
	assert.Equal(t, "ABCD2345", details.MemoToken)

	_, err = New(config.ProvidersConfig{}, config.StaticPlatform(config.DefaultPlatformConfig())).Initiate(context.Background(), paymentdomain.Intent{
		CheckoutGroupID: 5,
		Amount:          decimal.NewFromInt(1),
		MemoToken:       "ABCD2345",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)
}

func TestDepositHistorySignsRequest(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, depositHistoryPath, r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))

		raw := r.URL.RawQuery
		idx := strings.LastIndex(raw, "&signature=")
		if !assert.Positive(t, idx) {
			return
		}
		mac := hmac.New(sha256.New, []byte("secret"))
		mac.Write([]byte(raw[:idx]))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), raw[idx+len("&signature="):])
		assert.Equal(t, "USDT", r.URL.Query().Get("coin"))

		_, _ = w.Write([]byte(`[
			{"amount":"10.5","coin":"USDT","network":"TRX","status":1,"address":"TXaddr","addressTag":"ABCD2345","txId":"tx-1","insertTime":1780300800000},
			{"amount":"bogus","coin":"USDT","status":1,"txId":"tx-2"}
		]`))
	}))
	defer srv.Close()

	client := NewExchangeClient(srv.URL, "key", "secret", srv.Client(), clock.NewFakeClock(now))
	records, err := client.DepositHistory(context.Background(), "usdt", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "tx-1", records[0].TxID)
	assert.Equal(t, "ABCD2345", records[0].Memo)
	assert.True(t, records[0].Settled())
	assert.True(t, decimal.RequireFromString("10.5").Equal(records[0].Amount))
}

func TestDepositHistoryUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewExchangeClient(srv.URL, "key", "secret", srv.Client(), clock.NewFakeClock(time.Now()))
	_, err := client.DepositHistory(context.Background(), "USDT", time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)
}
