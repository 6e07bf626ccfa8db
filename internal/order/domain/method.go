package domain

import "strings"

// PaymentMethod is the persisted settlement method code.
type PaymentMethod string

const (
	PaymentMethodCardRedirect   PaymentMethod = "CARD_REDIRECT"
	PaymentMethodLocalQR        PaymentMethod = "LOCAL_QR"
	PaymentMethodCryptoTransfer PaymentMethod = "CRYPTO_TRANSFER"
	PaymentMethodWalletBalance  PaymentMethod = "WALLET_BALANCE"
)

var wireToMethod = map[string]PaymentMethod{
	"card":   PaymentMethodCardRedirect,
	"qr":     PaymentMethodLocalQR,
	"crypto": PaymentMethodCryptoTransfer,
	"wallet": PaymentMethodWalletBalance,
}

var methodToWire = map[PaymentMethod]string{
	PaymentMethodCardRedirect:   "card",
	PaymentMethodLocalQR:        "qr",
	PaymentMethodCryptoTransfer: "crypto",
	PaymentMethodWalletBalance:  "wallet",
}

// ParseWireMethod maps an API method name to its persisted code.
func ParseWireMethod(wire string) (PaymentMethod, error) {
	method, ok := wireToMethod[strings.ToLower(strings.TrimSpace(wire))]
	if !ok {
		return "", ErrInvalidPaymentMethod
	}
	return method, nil
}

func (m PaymentMethod) Wire() string {
	return methodToWire[m]
}

func (m PaymentMethod) Valid() bool {
	_, ok := methodToWire[m]
	return ok
}

// SettlesSynchronously reports methods that never leave a pending reference.
func (m PaymentMethod) SettlesSynchronously() bool {
	return m == PaymentMethodWalletBalance
}

func Methods() []PaymentMethod {
	return []PaymentMethod{
		PaymentMethodCardRedirect,
		PaymentMethodLocalQR,
		PaymentMethodCryptoTransfer,
		PaymentMethodWalletBalance,
	}
}
