package sandbox

import (
	"context"

	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
)

const (
	ReasonNotConfigured  = "provider_not_configured"
	ReasonProviderFailed = "provider_failed"
)

// Adapter settles immediately without collecting money. Used in demo mode
// for methods whose provider is absent or failing.
type Adapter struct {
	method orderdomain.PaymentMethod
	reason string
}

func New(method orderdomain.PaymentMethod, reason string) *Adapter {
	return &Adapter{method: method, reason: reason}
}

func (a *Adapter) Method() orderdomain.PaymentMethod {
	return a.method
}

func (a *Adapter) Initiate(ctx context.Context, intent paymentdomain.Intent) (paymentdomain.Initiation, error) {
	return paymentdomain.Initiation{
		Settled:    true,
		Sandbox:    true,
		ExternalID: "sandbox-" + intent.CheckoutGroupID.String(),
		Details: orderdomain.SandboxDetails{
			Method: a.method,
			Reason: a.reason,
		},
	}, nil
}
