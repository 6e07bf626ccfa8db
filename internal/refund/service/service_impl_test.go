package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/digimart/internal/catalog/domain"
	checkoutdomain "github.com/smallbiznis/digimart/internal/checkout/domain"
	"github.com/smallbiznis/digimart/internal/config"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	"github.com/smallbiznis/digimart/internal/refund/domain"
	"github.com/smallbiznis/digimart/internal/refund/repository"
	"github.com/smallbiznis/digimart/internal/refund/service"
	"github.com/smallbiznis/digimart/internal/testutil"
	"github.com/smallbiznis/digimart/internal/testutil/harness"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	m      *harness.Market
	svc    domain.Service
	buyer  snowflake.ID
	seller snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := harness.New(t)
	return &fixture{
		m: m,
		svc: service.NewService(service.Params{
			DB:            m.DB,
			Log:           m.Log,
			GenID:         m.Node,
			Clock:         m.Clock,
			Platform:      config.StaticPlatform(m.Platform),
			Repo:          repository.Provide(),
			Orders:        m.Orders,
			Sellers:       m.Sellers,
			Wallet:        m.Wallet,
			Notifications: m.Notifications,
		}),
		buyer:  m.Node.Generate(),
		seller: m.Node.Generate(),
	}
}

// subscription buys a 30 day streaming plan priced 30 with the wallet.
func (f *fixture) subscription(t *testing.T) snowflake.ID {
	t.Helper()
	p := f.m.Product(t, harness.ProductSpec{
		SellerID:     f.seller,
		Name:         "Streaming Premium 30d",
		Type:         catalogdomain.ProductTypeAccountSubscription,
		Delivery:     catalogdomain.DeliveryTypeManual,
		Price:        "30",
		DurationDays: 30,
	})
	f.m.Fund(t, f.buyer, "100")
	ids := f.m.Buy(t, f.buyer, orderdomain.PaymentMethodWalletBalance, checkoutdomain.CartItem{ProductID: p.ID, Quantity: 1})
	require.Len(t, ids, 1)
	require.Equal(t, orderdomain.StatusCompleted, f.m.Order(t, ids[0]).Status)
	return ids[0]
}

func TestRefundAfterTenUsedDays(t *testing.T) {
	f := newFixture(t)
	orderID := f.subscription(t)

	// subtotal 30, fee 1.25, commission 3.00, earnings 27.00
	testutil.DecimalEqual(t, "68.75", f.m.Balance(t, f.buyer))
	testutil.DecimalEqual(t, "27", f.m.Seller(t, f.seller).AvailableBalance)

	f.m.Clock.Advance(10*24*time.Hour + time.Hour)
	got, err := f.svc.RequestRefund(context.Background(), domain.Request{
		BuyerID: f.buyer,
		OrderID: orderID,
		Reason:  "stopped using it",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TypePartialProrated, got.Type)
	assert.Equal(t, domain.StatusProcessed, got.Status)
	assert.Equal(t, 10, got.UsedDays)
	assert.Equal(t, 20, got.RemainingDays)
	assert.Equal(t, 30, got.TotalDays)
	testutil.DecimalEqual(t, "20", got.RefundAmount)
	testutil.DecimalEqual(t, "18", got.SellerDebit)

	testutil.DecimalEqual(t, "88.75", f.m.Balance(t, f.buyer))
	seller := f.m.Seller(t, f.seller)
	testutil.DecimalEqual(t, "9", seller.AvailableBalance)
	assert.Zero(t, seller.TotalSales)

	order := f.m.Order(t, orderID)
	assert.Equal(t, orderdomain.StatusRefunded, order.Status)
	assert.Equal(t, orderdomain.PaymentStatusRefunded, order.PaymentStatus)
	testutil.DecimalEqual(t, "20", order.RefundedAmount)
	assert.Equal(t, orderdomain.PaymentStatusRefunded, f.m.Payment(t, orderID).Status)

	txs, err := f.m.Wallet.Transactions(context.Background(), f.buyer, 1)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, walletdomain.TransactionRefundCredit, txs[0].Type)
	require.NotNil(t, txs[0].RefundID)
	assert.Equal(t, got.ID, *txs[0].RefundID)

	_, err = f.svc.RequestRefund(context.Background(), domain.Request{BuyerID: f.buyer, OrderID: orderID})
	assert.ErrorIs(t, err, domain.ErrRefundAlreadyRequested)
	assert.Equal(t, int64(1), f.m.CountRows(t, "refund_requests"))
}

func TestRefundSameDayIsFull(t *testing.T) {
	f := newFixture(t)
	orderID := f.subscription(t)

	f.m.Clock.Advance(3 * time.Hour)
	got, err := f.svc.RequestRefund(context.Background(), domain.Request{BuyerID: f.buyer, OrderID: orderID})
	require.NoError(t, err)
	assert.Equal(t, domain.TypeFull, got.Type)
	testutil.DecimalEqual(t, "30", got.RefundAmount)
	testutil.DecimalEqual(t, "27", got.SellerDebit)
	testutil.DecimalEqual(t, "0", f.m.Seller(t, f.seller).AvailableBalance)
}

func TestRefundMixedOrderProratesOnlySubscription(t *testing.T) {
	f := newFixture(t)
	plan := f.m.Product(t, harness.ProductSpec{
		SellerID:     f.seller,
		Name:         "Streaming Premium 30d",
		Type:         catalogdomain.ProductTypeAccountSubscription,
		Delivery:     catalogdomain.DeliveryTypeManual,
		Price:        "30",
		DurationDays: 30,
	})
	setup := f.m.Product(t, harness.ProductSpec{
		SellerID:     f.seller,
		Name:         "Profile Setup",
		Type:         catalogdomain.ProductTypeService,
		Delivery:     catalogdomain.DeliveryTypeManual,
		Price:        "30",
		DurationDays: 30,
	})
	f.m.Fund(t, f.buyer, "200")
	ids := f.m.Buy(t, f.buyer, orderdomain.PaymentMethodWalletBalance,
		checkoutdomain.CartItem{ProductID: plan.ID, Quantity: 1},
		checkoutdomain.CartItem{ProductID: setup.ID, Quantity: 1},
	)
	require.Len(t, ids, 1)
	require.Equal(t, orderdomain.StatusCompleted, f.m.Order(t, ids[0]).Status)

	f.m.Clock.Advance(10*24*time.Hour + time.Hour)
	got, err := f.svc.RequestRefund(context.Background(), domain.Request{BuyerID: f.buyer, OrderID: ids[0]})
	require.NoError(t, err)

	assert.Equal(t, domain.TypePartialProrated, got.Type)
	testutil.DecimalEqual(t, "30", got.OriginalAmount)
	testutil.DecimalEqual(t, "20", got.RefundAmount)
	testutil.DecimalEqual(t, "18", got.SellerDebit)
	assert.Equal(t, 10, got.UsedDays)
	assert.Equal(t, 20, got.RemainingDays)
}

func TestRefundIneligible(t *testing.T) {
	t.Run("other buyer", func(t *testing.T) {
		f := newFixture(t)
		orderID := f.subscription(t)
		_, err := f.svc.RequestRefund(context.Background(), domain.Request{BuyerID: f.m.Node.Generate(), OrderID: orderID})
		assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
	})

	t.Run("window expired", func(t *testing.T) {
		f := newFixture(t)
		orderID := f.subscription(t)
		f.m.Clock.Advance(31 * 24 * time.Hour)
		_, err := f.svc.RequestRefund(context.Background(), domain.Request{BuyerID: f.buyer, OrderID: orderID})
		assert.ErrorIs(t, err, domain.ErrRefundWindowExpired)
	})

	t.Run("fully used", func(t *testing.T) {
		f := newFixture(t)
		f.m.Platform.Refund.WindowDays = 60
		f.svc = service.NewService(service.Params{
			DB:            f.m.DB,
			Log:           f.m.Log,
			GenID:         f.m.Node,
			Clock:         f.m.Clock,
			Platform:      config.StaticPlatform(f.m.Platform),
			Repo:          repository.Provide(),
			Orders:        f.m.Orders,
			Sellers:       f.m.Sellers,
			Wallet:        f.m.Wallet,
			Notifications: f.m.Notifications,
		})
		orderID := f.subscription(t)
		f.m.Clock.Advance(40 * 24 * time.Hour)
		_, err := f.svc.RequestRefund(context.Background(), domain.Request{BuyerID: f.buyer, OrderID: orderID})
		assert.ErrorIs(t, err, domain.ErrNothingToRefund)
		assert.Equal(t, orderdomain.StatusCompleted, f.m.Order(t, orderID).Status)
	})

	t.Run("not time boxed", func(t *testing.T) {
		f := newFixture(t)
		p := f.m.Product(t, harness.ProductSpec{SellerID: f.seller, Price: "5", Codes: []string{"GAME-1"}})
		f.m.Fund(t, f.buyer, "10")
		ids := f.m.Buy(t, f.buyer, orderdomain.PaymentMethodWalletBalance, checkoutdomain.CartItem{ProductID: p.ID, Quantity: 1})
		_, err := f.svc.RequestRefund(context.Background(), domain.Request{BuyerID: f.buyer, OrderID: ids[0]})
		assert.ErrorIs(t, err, domain.ErrNotRefundable)
		assert.Zero(t, f.m.CountRows(t, "refund_requests"))
	})
}
