package walletbalance

import (
	"context"
	"fmt"

	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
)

// Adapter settles a checkout by debiting the buyer's wallet. The debit is
// bound to the first order of the checkout.
type Adapter struct {
	wallet walletdomain.Service
}

func New(wallet walletdomain.Service) *Adapter {
	return &Adapter{wallet: wallet}
}

func (a *Adapter) Method() orderdomain.PaymentMethod {
	return orderdomain.PaymentMethodWalletBalance
}

func (a *Adapter) Initiate(ctx context.Context, intent paymentdomain.Intent) (paymentdomain.Initiation, error) {
	if intent.BuyerID == 0 || len(intent.OrderIDs) == 0 {
		return paymentdomain.Initiation{}, paymentdomain.ErrInvalidIntent
	}
	orderID := intent.OrderIDs[0]
	result, err := a.wallet.Debit(ctx, walletdomain.EntryRequest{
		UserID:      intent.BuyerID,
		Type:        walletdomain.TransactionPurchaseDebit,
		Amount:      intent.Amount,
		OrderID:     &orderID,
		Description: fmt.Sprintf("Checkout %s", intent.CheckoutGroupID),
	})
	if err != nil {
		return paymentdomain.Initiation{}, err
	}
	return paymentdomain.Initiation{
		Settled:    true,
		ExternalID: result.TransactionID.String(),
		Details: orderdomain.WalletDetails{
			TransactionID: result.TransactionID,
			BalanceAfter:  result.Balance,
		},
	}, nil
}
