package localqr

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/png"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/digimart/internal/clock"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdapter() *Adapter {
	return New(Config{
		MerchantID:    "M-001",
		MerchantName:  "Digimart Store",
		MerchantCity:  "Jakarta",
		WebhookSecret: "qr-secret",
	}, clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestInitiateRendersPayload(t *testing.T) {
	expires := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)
	got, err := newAdapter().Initiate(context.Background(), paymentdomain.Intent{
		CheckoutGroupID: 77,
		Amount:          decimal.RequireFromString("25.5"),
		ExpiresAt:       expires,
	})
	require.NoError(t, err)
	assert.False(t, got.Settled)

	details, ok := got.Details.(orderdomain.LocalQRDetails)
	require.True(t, ok)
	assert.Equal(t, got.ExternalID, details.Reference)
	assert.Len(t, details.Reference, 26)
	assert.Equal(t, expires, details.ExpiresAt)
	assert.Contains(t, details.Payload, "540525.50")
	assert.Contains(t, details.Payload, "M-001")
	assert.True(t, strings.HasPrefix(details.Payload, "000201010212"))

	body := details.Payload[:len(details.Payload)-4]
	assert.Equal(t, details.Payload[len(details.Payload)-4:], strings.ToUpper(hex4(crc16(body))))

	raw, err := base64.StdEncoding.DecodeString(details.ImagePNG)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, imageSize, img.Bounds().Dx())
}

func TestCRC16KnownVector(t *testing.T) {
	assert.Equal(t, uint16(0x29B1), crc16("123456789"))
}

func TestVerifyAndParseCallback(t *testing.T) {
	adapter := newAdapter()
	payload := []byte(`{"event_id":"qr_evt_1","reference":"01HREF","status":"PAID","checkout_group_id":"77","timestamp":1767225600}`)

	headers := http.Header{}
	headers.Set(signatureHeader, Sign("qr-secret", payload))
	require.NoError(t, adapter.Verify(context.Background(), payload, headers))

	headers.Set(signatureHeader, Sign("other", payload))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypeCheckoutCompleted, event.Type)
	assert.EqualValues(t, 77, event.CheckoutGroupID)
	assert.Equal(t, "01HREF", event.Reference)

	_, err = adapter.Parse(context.Background(), []byte(`{"event_id":"e","reference":"r","status":"PENDING","checkout_group_id":"77"}`))
	assert.True(t, errors.Is(err, paymentdomain.ErrEventIgnored))
}

func hex4(v uint16) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[v>>12&0xF], digits[v>>8&0xF], digits[v>>4&0xF], digits[v&0xF]})
}
