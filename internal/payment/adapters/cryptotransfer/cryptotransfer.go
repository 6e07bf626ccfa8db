package cryptotransfer

import (
	"context"
	"strings"

	"github.com/smallbiznis/digimart/internal/config"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
)

// Adapter hands out the platform deposit address. The buyer sends the exact
// amount with the memo token and reconciliation settles the payment.
type Adapter struct {
	providers config.ProvidersConfig
	platform  config.PlatformSource
}

func New(providers config.ProvidersConfig, platform config.PlatformSource) *Adapter {
	return &Adapter{providers: providers, platform: platform}
}

func (a *Adapter) Method() orderdomain.PaymentMethod {
	return orderdomain.PaymentMethodCryptoTransfer
}

func (a *Adapter) Initiate(ctx context.Context, intent paymentdomain.Intent) (paymentdomain.Initiation, error) {
	if intent.CheckoutGroupID == 0 || !intent.Amount.IsPositive() || strings.TrimSpace(intent.MemoToken) == "" {
		return paymentdomain.Initiation{}, paymentdomain.ErrInvalidIntent
	}

	asset := a.platform.Get().Deposits.DefaultAsset()
	address, ok := a.providers.CryptoAddress(asset.Coin, asset.Network)
	if !ok {
		return paymentdomain.Initiation{}, paymentdomain.ErrProviderUnavailable
	}

	return paymentdomain.Initiation{
		ExternalID: intent.MemoToken,
		Details: orderdomain.CryptoTransferDetails{
			Address:   address,
			Coin:      strings.ToUpper(asset.Coin),
			Network:   strings.ToUpper(asset.Network),
			MemoToken: intent.MemoToken,
			Amount:    intent.Amount,
			ExpiresAt: intent.ExpiresAt,
		},
	}, nil
}
