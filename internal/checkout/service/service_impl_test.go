package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/digimart/internal/catalog/domain"
	"github.com/smallbiznis/digimart/internal/checkout/domain"
	"github.com/smallbiznis/digimart/internal/checkout/service"
	"github.com/smallbiznis/digimart/internal/config"
	inventorydomain "github.com/smallbiznis/digimart/internal/inventory/domain"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
	"github.com/smallbiznis/digimart/internal/testutil"
	"github.com/smallbiznis/digimart/internal/testutil/harness"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	method orderdomain.PaymentMethod
	init   paymentdomain.Initiation
	err    error
	calls  int
	intent paymentdomain.Intent
}

func (a *stubAdapter) Method() orderdomain.PaymentMethod { return a.method }

func (a *stubAdapter) Initiate(_ context.Context, intent paymentdomain.Intent) (paymentdomain.Initiation, error) {
	a.calls++
	a.intent = intent
	return a.init, a.err
}

func newCheckout(m *harness.Market) domain.Service {
	return service.NewService(service.Params{
		DB:          m.DB,
		Log:         m.Log,
		GenID:       m.Node,
		Clock:       m.Clock,
		Platform:    config.StaticPlatform(m.Platform),
		Products:    m.Products,
		Orders:      m.Orders,
		Inventory:   m.Inventory,
		Fraud:       m.Fraud,
		Adapters:    m.Registry,
		Fulfillment: m.Fulfillment,
		Memo:        m.Memo,
	})
}

func TestCheckoutRejectsInsufficientStock(t *testing.T) {
	m := harness.New(t)
	svc := newCheckout(m)
	p := m.Product(t, harness.ProductSpec{Name: "Steam Key", Codes: []string{"ONLY-ONE"}})

	_, err := svc.Checkout(context.Background(), domain.Request{
		BuyerID: m.Node.Generate(),
		Items:   []domain.CartItem{{ProductID: p.ID, Quantity: 2}},
		Method:  orderdomain.PaymentMethodWalletBalance,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, inventorydomain.ErrInsufficientStock)

	var stockErr *inventorydomain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, p.ID, stockErr.ProductID)
	assert.Equal(t, int64(1), stockErr.Available)
	assert.Contains(t, err.Error(), "Steam Key")
	assert.Contains(t, err.Error(), "available 1")

	assert.Zero(t, m.CountRows(t, "orders"))
	assert.Zero(t, m.CountRows(t, "payments"))
}

func TestCheckoutSumsQuantitiesPerProduct(t *testing.T) {
	m := harness.New(t)
	svc := newCheckout(m)
	p := m.Product(t, harness.ProductSpec{Codes: []string{"A", "B"}})

	_, err := svc.Checkout(context.Background(), domain.Request{
		BuyerID: m.Node.Generate(),
		Items: []domain.CartItem{
			{ProductID: p.ID, Quantity: 2},
			{ProductID: p.ID, Quantity: 1},
		},
		Method: orderdomain.PaymentMethodWalletBalance,
	})
	assert.ErrorIs(t, err, inventorydomain.ErrInsufficientStock)
}

func TestWalletCheckoutCompletesOrder(t *testing.T) {
	m := harness.New(t)
	svc := newCheckout(m)
	ctx := context.Background()
	buyerID := m.Node.Generate()
	p := m.Product(t, harness.ProductSpec{Price: "10", Codes: []string{"K1", "K2", "K3"}})
	m.Fund(t, buyerID, "100")

	resp, err := svc.Checkout(ctx, domain.Request{
		BuyerID: buyerID,
		Items:   []domain.CartItem{{ProductID: p.ID, Quantity: 2}},
		Method:  orderdomain.PaymentMethodWalletBalance,
	})
	require.NoError(t, err)
	require.Equal(t, domain.ResponseWallet, resp.Kind())
	wallet := resp.(domain.WalletResponse)
	require.Len(t, wallet.OrderIDs, 1)

	// subtotal 20, fee 0.50 + 2.5% = 1.00, commission 10% = 2.00
	testutil.DecimalEqual(t, "79", wallet.Balance)
	testutil.DecimalEqual(t, "79", m.Balance(t, buyerID))

	order := m.Order(t, wallet.OrderIDs[0])
	assert.Equal(t, orderdomain.StatusCompleted, order.Status)
	assert.Equal(t, orderdomain.PaymentStatusCompleted, order.PaymentStatus)
	testutil.DecimalEqual(t, "20", order.Subtotal)
	testutil.DecimalEqual(t, "1", order.ServiceFee)
	testutil.DecimalEqual(t, "21", order.Total)
	testutil.DecimalEqual(t, "2", order.CommissionAmount)
	testutil.DecimalEqual(t, "18", order.SellerEarnings)
	assert.False(t, order.IsHighValue)
	assert.Nil(t, order.DeliveryScheduledAt)

	seller := m.Seller(t, p.SellerID)
	testutil.DecimalEqual(t, "18", seller.AvailableBalance)
	assert.Equal(t, 1, seller.TotalSales)
	assert.Equal(t, int64(2), m.CountCodes(t, p.ID, inventorydomain.UnitStatusSold))

	txs, err := m.Wallet.Transactions(ctx, buyerID, 10)
	require.NoError(t, err)
	var debit *walletdomain.Transaction
	for i := range txs {
		if txs[i].Type == walletdomain.TransactionPurchaseDebit {
			debit = &txs[i]
		}
	}
	require.NotNil(t, debit)
	testutil.DecimalEqual(t, "-21", debit.Amount)
	require.NotNil(t, debit.OrderID)
	assert.Equal(t, order.ID, *debit.OrderID)
}

func TestWalletCheckoutRollsBackOnInsufficientFunds(t *testing.T) {
	m := harness.New(t)
	svc := newCheckout(m)
	buyerID := m.Node.Generate()
	p := m.Product(t, harness.ProductSpec{Price: "10", Codes: []string{"K1"}})
	m.Fund(t, buyerID, "5")

	_, err := svc.Checkout(context.Background(), domain.Request{
		BuyerID: buyerID,
		Items:   []domain.CartItem{{ProductID: p.ID, Quantity: 1}},
		Method:  orderdomain.PaymentMethodWalletBalance,
	})
	assert.ErrorIs(t, err, walletdomain.ErrInsufficientFunds)

	assert.Zero(t, m.CountRows(t, "orders"))
	assert.Zero(t, m.CountRows(t, "order_items"))
	assert.Zero(t, m.CountRows(t, "payments"))
	testutil.DecimalEqual(t, "5", m.Balance(t, buyerID))
	assert.Equal(t, int64(1), m.CountCodes(t, p.ID, inventorydomain.UnitStatusAvailable))
}

func TestCheckoutGroupsBySeller(t *testing.T) {
	m := harness.New(t)
	svc := newCheckout(m)
	ctx := context.Background()
	a := m.Product(t, harness.ProductSpec{Price: "10", Codes: []string{"A1"}})
	b := m.Product(t, harness.ProductSpec{Price: "30", Delivery: catalogdomain.DeliveryTypeManual})

	resp, err := svc.Checkout(ctx, domain.Request{
		BuyerID: m.Node.Generate(),
		Items: []domain.CartItem{
			{ProductID: b.ID, Quantity: 1},
			{ProductID: a.ID, Quantity: 1},
		},
		Method: orderdomain.PaymentMethodCardRedirect,
	})
	require.NoError(t, err)
	completed, ok := resp.(domain.CompletedResponse)
	require.True(t, ok)
	assert.True(t, completed.Sandbox)
	require.Len(t, completed.OrderIDs, 2)

	first := m.Order(t, completed.OrderIDs[0])
	second := m.Order(t, completed.OrderIDs[1])
	assert.Equal(t, first.CheckoutGroupID, second.CheckoutGroupID)
	assert.NotEqual(t, first.SellerID, second.SellerID)
	assert.Less(t, first.SellerID, second.SellerID)

	for _, id := range completed.OrderIDs {
		o := m.Order(t, id)
		assert.Equal(t, orderdomain.StatusCompleted, o.Status)
		pay := m.Payment(t, id)
		assert.True(t, pay.Sandbox)
		assert.True(t, pay.Amount.Equal(o.Total))
		details, err := orderdomain.DecodeDetails(pay.Details)
		require.NoError(t, err)
		assert.Equal(t, orderdomain.DetailsKindSandbox, details.Kind())
	}

	testutil.DecimalEqual(t, "9", m.Seller(t, a.SellerID).AvailableBalance)
	testutil.DecimalEqual(t, "27", m.Seller(t, b.SellerID).AvailableBalance)

	var messages int64
	require.NoError(t, m.DB.Table("messages").Where("is_system = ?", true).Count(&messages).Error)
	assert.Equal(t, int64(1), messages)
}

func TestPendingCheckoutStoresProviderReference(t *testing.T) {
	m := harness.New(t)
	card := &stubAdapter{
		method: orderdomain.PaymentMethodCardRedirect,
		init: paymentdomain.Initiation{
			ExternalID: "cs_test_123",
			Details: orderdomain.CardRedirectDetails{
				SessionID: "cs_test_123",
				URL:       "https://pay.example.com/c/cs_test_123",
			},
		},
	}
	m.Registry.Register(card)
	svc := newCheckout(m)
	p := m.Product(t, harness.ProductSpec{Codes: []string{"C1"}})

	resp, err := svc.Checkout(context.Background(), domain.Request{
		BuyerID: m.Node.Generate(),
		Items:   []domain.CartItem{{ProductID: p.ID, Quantity: 1}},
		Method:  orderdomain.PaymentMethodCardRedirect,
	})
	require.NoError(t, err)
	redirect, ok := resp.(domain.RedirectResponse)
	require.True(t, ok)
	assert.Equal(t, "https://pay.example.com/c/cs_test_123", redirect.URL)
	require.Len(t, redirect.OrderIDs, 1)

	assert.Equal(t, 1, card.calls)
	testutil.DecimalEqual(t, "10.75", card.intent.Amount)

	order := m.Order(t, redirect.OrderIDs[0])
	assert.Equal(t, orderdomain.StatusPending, order.Status)
	require.NotNil(t, order.ExpiresAt)
	assert.WithinDuration(t, harness.StartTime.Add(time.Hour), *order.ExpiresAt, time.Second)

	pay := m.Payment(t, order.ID)
	assert.Equal(t, orderdomain.PaymentStatusPending, pay.Status)
	require.NotNil(t, pay.ExternalID)
	assert.Equal(t, "cs_test_123", *pay.ExternalID)
	assert.Equal(t, int64(1), m.CountCodes(t, p.ID, inventorydomain.UnitStatusAvailable))
}

func TestProviderFailureFallsBackToSandbox(t *testing.T) {
	m := harness.New(t)
	m.Registry.Register(&stubAdapter{
		method: orderdomain.PaymentMethodLocalQR,
		err:    paymentdomain.ErrProviderUnavailable,
	})
	svc := newCheckout(m)
	p := m.Product(t, harness.ProductSpec{Codes: []string{"Q1"}})

	resp, err := svc.Checkout(context.Background(), domain.Request{
		BuyerID: m.Node.Generate(),
		Items:   []domain.CartItem{{ProductID: p.ID, Quantity: 1}},
		Method:  orderdomain.PaymentMethodLocalQR,
	})
	require.NoError(t, err)
	completed, ok := resp.(domain.CompletedResponse)
	require.True(t, ok)
	assert.True(t, completed.Sandbox)
	assert.Equal(t, orderdomain.StatusCompleted, m.Order(t, completed.OrderIDs[0]).Status)
}

func TestCryptoCheckoutIssuesMemoToken(t *testing.T) {
	m := harness.New(t)
	m.Registry.Register(&stubAdapter{
		method: orderdomain.PaymentMethodCryptoTransfer,
		init: paymentdomain.Initiation{
			Details: orderdomain.CryptoTransferDetails{
				Address: "TXaddr",
				Coin:    "USDT",
				Network: "TRX",
			},
		},
	})
	svc := newCheckout(m)
	p := m.Product(t, harness.ProductSpec{Codes: []string{"X1"}})

	resp, err := svc.Checkout(context.Background(), domain.Request{
		BuyerID: m.Node.Generate(),
		Items:   []domain.CartItem{{ProductID: p.ID, Quantity: 1}},
		Method:  orderdomain.PaymentMethodCryptoTransfer,
	})
	require.NoError(t, err)
	crypto, ok := resp.(domain.CryptoResponse)
	require.True(t, ok)

	pay := m.Payment(t, crypto.OrderIDs[0])
	require.NotNil(t, pay.MemoToken)
	assert.Len(t, *pay.MemoToken, 8)

	order := m.Order(t, crypto.OrderIDs[0])
	require.NotNil(t, order.ExpiresAt)
	assert.WithinDuration(t, harness.StartTime.Add(30*time.Minute), *order.ExpiresAt, time.Second)
}

func TestHighValueCheckoutDefersDelivery(t *testing.T) {
	m := harness.New(t)
	svc := newCheckout(m)
	buyerID := m.Node.Generate()
	p := m.Product(t, harness.ProductSpec{Price: "600", Codes: []string{"HV-1"}})
	m.Fund(t, buyerID, "1000")

	resp, err := svc.Checkout(context.Background(), domain.Request{
		BuyerID: buyerID,
		Items:   []domain.CartItem{{ProductID: p.ID, Quantity: 1}},
		Method:  orderdomain.PaymentMethodWalletBalance,
	})
	require.NoError(t, err)

	order := m.Order(t, resp.Orders()[0])
	assert.True(t, order.IsHighValue)
	assert.False(t, order.RequiresManualReview)
	require.NotNil(t, order.DeliveryScheduledAt)
	assert.WithinDuration(t, harness.StartTime.Add(60*time.Minute), *order.DeliveryScheduledAt, time.Second)
	assert.Equal(t, orderdomain.StatusProcessing, order.Status)
	assert.Equal(t, orderdomain.PaymentStatusCompleted, order.PaymentStatus)
	assert.Equal(t, int64(1), m.CountCodes(t, p.ID, inventorydomain.UnitStatusAvailable))
	assert.True(t, m.Seller(t, p.SellerID).AvailableBalance.IsZero())
}

func TestCheckoutValidation(t *testing.T) {
	m := harness.New(t)
	svc := newCheckout(m)
	buyerID := m.Node.Generate()
	active := m.Product(t, harness.ProductSpec{Codes: []string{"V1"}})
	inactive := m.Product(t, harness.ProductSpec{Inactive: true})
	own := m.Product(t, harness.ProductSpec{SellerID: buyerID, Delivery: catalogdomain.DeliveryTypeManual})

	cases := []struct {
		name string
		req  domain.Request
		want error
	}{
		{"no buyer", domain.Request{Items: []domain.CartItem{{ProductID: active.ID, Quantity: 1}}, Method: orderdomain.PaymentMethodWalletBalance}, domain.ErrInvalidBuyer},
		{"empty cart", domain.Request{BuyerID: buyerID, Method: orderdomain.PaymentMethodWalletBalance}, domain.ErrEmptyCart},
		{"bad method", domain.Request{BuyerID: buyerID, Items: []domain.CartItem{{ProductID: active.ID, Quantity: 1}}, Method: "PAYPAL"}, orderdomain.ErrInvalidPaymentMethod},
		{"zero quantity", domain.Request{BuyerID: buyerID, Items: []domain.CartItem{{ProductID: active.ID, Quantity: 0}}, Method: orderdomain.PaymentMethodWalletBalance}, domain.ErrInvalidQuantity},
		{"inactive", domain.Request{BuyerID: buyerID, Items: []domain.CartItem{{ProductID: inactive.ID, Quantity: 1}}, Method: orderdomain.PaymentMethodWalletBalance}, domain.ErrProductUnavailable},
		{"unknown", domain.Request{BuyerID: buyerID, Items: []domain.CartItem{{ProductID: snowflake.ID(42), Quantity: 1}}, Method: orderdomain.PaymentMethodWalletBalance}, domain.ErrProductUnavailable},
		{"own product", domain.Request{BuyerID: buyerID, Items: []domain.CartItem{{ProductID: own.ID, Quantity: 1}}, Method: orderdomain.PaymentMethodWalletBalance}, domain.ErrOwnProduct},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Checkout(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, m.CountRows(t, "orders"))
}

func TestQuoteFor(t *testing.T) {
	fees := config.FeeConfig{ServiceFeeFixed: 0.5, ServiceFeePercent: 2.5, CommissionRate: 0.15}
	q := service.QuoteFor(fees, snowflake.ID(7), testutil.D("33.33"))

	testutil.DecimalEqual(t, "1.33", q.ServiceFee)
	testutil.DecimalEqual(t, "34.66", q.Total)
	testutil.DecimalEqual(t, "5.00", q.CommissionAmount)
	testutil.DecimalEqual(t, "28.33", q.SellerEarnings)
	assert.True(t, q.Subtotal.Sub(q.CommissionAmount).Equal(q.SellerEarnings))
}
