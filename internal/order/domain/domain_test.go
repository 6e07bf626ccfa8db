package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestParseWireMethod(t *testing.T) {
	method, err := ParseWireMethod(" Crypto ")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodCryptoTransfer, method)
	assert.Equal(t, "crypto", method.Wire())

	for _, m := range Methods() {
		parsed, err := ParseWireMethod(m.Wire())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	_, err = ParseWireMethod("paypal")
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
	assert.False(t, PaymentMethod("paypal").Valid())
}

func TestDetailsCarryKindDiscriminator(t *testing.T) {
	raw, err := EncodeDetails(CryptoTransferDetails{
		Address:   "TXaddr",
		Coin:      "USDT",
		Network:   "TRX",
		MemoToken: "ABCD2345",
		Amount:    decimal.RequireFromString("12.5"),
		ExpiresAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"crypto_transfer"`)

	decoded, err := DecodeDetails(raw)
	require.NoError(t, err)
	crypto, ok := decoded.(CryptoTransferDetails)
	require.True(t, ok)
	assert.Equal(t, "ABCD2345", crypto.MemoToken)
	assert.True(t, crypto.Amount.Equal(decimal.RequireFromString("12.5")))
}

func TestDecodeDetailsRejectsUnknownKind(t *testing.T) {
	_, err := DecodeDetails(datatypes.JSON(`{"kind":"paypal","data":{}}`))
	assert.ErrorIs(t, err, ErrInvalidDetails)

	_, err = DecodeDetails(datatypes.JSON(`not json`))
	assert.ErrorIs(t, err, ErrInvalidDetails)

	details, err := DecodeDetails(nil)
	require.NoError(t, err)
	assert.Nil(t, details)
}

func TestOrderDeliveryWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(30 * time.Minute)

	o := Order{}
	assert.False(t, o.DeliveryDeferred(now))

	o.DeliveryScheduledAt = &later
	assert.True(t, o.DeliveryDeferred(now))
	assert.False(t, o.DeliveryDeferred(later))

	assert.True(t, StatusCancelled.IsFinal())
	assert.False(t, StatusUnderReview.IsFinal())
}
