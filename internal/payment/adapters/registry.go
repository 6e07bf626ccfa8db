package adapters

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	"github.com/smallbiznis/digimart/internal/payment/adapters/cardredirect"
	"github.com/smallbiznis/digimart/internal/payment/adapters/cryptotransfer"
	"github.com/smallbiznis/digimart/internal/payment/adapters/localqr"
	"github.com/smallbiznis/digimart/internal/payment/adapters/sandbox"
	"github.com/smallbiznis/digimart/internal/payment/adapters/walletbalance"
	"github.com/smallbiznis/digimart/internal/payment/domain"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg      config.Config
	Platform config.PlatformSource
	Clock    clock.Clock
	Log      *zap.Logger
	Wallet   walletdomain.Service
}

// Registry resolves the adapter for each payment method. Methods whose
// provider is not configured resolve to the sandbox adapter.
type Registry struct {
	adapters map[orderdomain.PaymentMethod]domain.Adapter
	webhooks map[string]domain.WebhookAdapter
}

func NewRegistry(p Params) *Registry {
	log := p.Log.Named("payment.registry")
	providers := p.Cfg.Providers
	httpClient := &http.Client{Timeout: requestTimeout(providers)}
	registry := &Registry{
		adapters: map[orderdomain.PaymentMethod]domain.Adapter{},
		webhooks: map[string]domain.WebhookAdapter{},
	}

	if providers.CardConfigured() {
		card := cardredirect.New(cardredirect.Config{
			GatewayURL:    providers.CardGatewayURL,
			SecretKey:     providers.CardSecretKey,
			WebhookSecret: providers.CardWebhookSecret,
			SuccessURL:    providers.CardSuccessURL,
			CancelURL:     providers.CardCancelURL,
			Currency:      providers.CardCurrency,
		}, httpClient, p.Clock)
		registry.Register(card)
		registry.RegisterWebhook(card)
	}

	if providers.QRConfigured() {
		qr := localqr.New(localqr.Config{
			MerchantID:    providers.QRMerchantID,
			MerchantName:  providers.QRMerchantName,
			MerchantCity:  providers.QRMerchantCity,
			WebhookSecret: providers.QRWebhookSecret,
		}, p.Clock)
		registry.Register(qr)
		registry.RegisterWebhook(qr)
	}

	asset := p.Platform.Get().Deposits.DefaultAsset()
	if _, ok := providers.CryptoAddress(asset.Coin, asset.Network); ok && providers.CryptoConfigured() {
		registry.Register(cryptotransfer.New(providers, p.Platform))
	}

	registry.Register(walletbalance.New(p.Wallet))

	for _, method := range orderdomain.Methods() {
		if _, ok := registry.adapters[method]; !ok {
			registry.Register(sandbox.New(method, sandbox.ReasonNotConfigured))
			log.Warn("payment method running in sandbox mode", zap.String("method", string(method)))
		}
	}
	return registry
}

func (r *Registry) Register(adapter domain.Adapter) {
	if adapter == nil {
		return
	}
	if r.adapters == nil {
		r.adapters = map[orderdomain.PaymentMethod]domain.Adapter{}
	}
	r.adapters[adapter.Method()] = adapter
}

func (r *Registry) RegisterWebhook(adapter domain.WebhookAdapter) {
	if adapter == nil {
		return
	}
	provider := strings.ToLower(strings.TrimSpace(adapter.Provider()))
	if provider == "" {
		return
	}
	if r.webhooks == nil {
		r.webhooks = map[string]domain.WebhookAdapter{}
	}
	r.webhooks[provider] = adapter
}

func (r *Registry) Adapter(method orderdomain.PaymentMethod) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	adapter, ok := r.adapters[method]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

// Fallback is the demo adapter used when the real provider fails.
func (r *Registry) Fallback(method orderdomain.PaymentMethod) domain.Adapter {
	return sandbox.New(method, sandbox.ReasonProviderFailed)
}

func (r *Registry) Webhook(provider string) (domain.WebhookAdapter, bool) {
	if r == nil {
		return nil, false
	}
	adapter, ok := r.webhooks[strings.ToLower(strings.TrimSpace(provider))]
	return adapter, ok
}

// NewExternalLedger returns the exchange client, or a ledger that always
// reports the provider as unavailable when no credentials are configured.
func NewExternalLedger(cfg config.Config, clk clock.Clock) domain.ExternalLedger {
	providers := cfg.Providers
	if !providers.CryptoConfigured() {
		return unavailableLedger{}
	}
	return cryptotransfer.NewExchangeClient(
		providers.CryptoExchangeURL,
		providers.CryptoAPIKey,
		providers.CryptoAPISecret,
		&http.Client{Timeout: requestTimeout(providers)},
		clk,
	)
}

type unavailableLedger struct{}

func (unavailableLedger) DepositHistory(ctx context.Context, coin string, start, end time.Time) ([]domain.DepositRecord, error) {
	return nil, domain.ErrProviderUnavailable
}

func requestTimeout(providers config.ProvidersConfig) time.Duration {
	if providers.CryptoRequestLimit > 0 {
		return providers.CryptoRequestLimit
	}
	return 15 * time.Second
}
