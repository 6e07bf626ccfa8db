package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/digimart/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/digimart/internal/catalog/repository"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	"github.com/smallbiznis/digimart/internal/fulfillment/domain"
	"github.com/smallbiznis/digimart/internal/fulfillment/service"
	inventorydomain "github.com/smallbiznis/digimart/internal/inventory/domain"
	inventoryrepo "github.com/smallbiznis/digimart/internal/inventory/repository"
	"github.com/smallbiznis/digimart/internal/inventory/sealer"
	inventoryservice "github.com/smallbiznis/digimart/internal/inventory/service"
	messagingrepo "github.com/smallbiznis/digimart/internal/messaging/repository"
	messagingservice "github.com/smallbiznis/digimart/internal/messaging/service"
	notificationdomain "github.com/smallbiznis/digimart/internal/notification/domain"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	orderrepo "github.com/smallbiznis/digimart/internal/order/repository"
	sellerdomain "github.com/smallbiznis/digimart/internal/seller/domain"
	sellerrepo "github.com/smallbiznis/digimart/internal/seller/repository"
	"github.com/smallbiznis/digimart/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	notificationdomain.Service
	fulfilled []orderdomain.Order
	cancelled []orderdomain.Order
}

func (n *recordingNotifier) OrderFulfilled(_ context.Context, order orderdomain.Order, _ []orderdomain.OrderItem) {
	n.fulfilled = append(n.fulfilled, order)
}

func (n *recordingNotifier) OrderCancelled(_ context.Context, order orderdomain.Order, _ string, _ decimal.Decimal) {
	n.cancelled = append(n.cancelled, order)
}

type fixture struct {
	svc       domain.Service
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FakeClock
	inventory inventorydomain.Service
	orders    orderdomain.Repository
	sellers   sellerdomain.Repository
	notifier  *recordingNotifier
	sellerID  snowflake.ID
	buyerID   snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	s, err := sealer.New("fulfillment-test-key")
	require.NoError(t, err)

	products := catalogrepo.Provide()
	inventory := inventoryservice.NewService(inventoryservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Platform: config.StaticPlatform(config.DefaultPlatformConfig()),
		Repo:     inventoryrepo.Provide(),
		Products: products,
		Sealer:   s,
	})
	messaging := messagingservice.NewService(messagingservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  messagingrepo.Provide(),
	})
	orders := orderrepo.Provide()
	sellers := sellerrepo.Provide()
	notifier := &recordingNotifier{}

	svc := service.NewService(service.Params{
		DB:            db,
		Log:           zap.NewNop(),
		Clock:         clk,
		Orders:        orders,
		Products:      products,
		Sellers:       sellers,
		Inventory:     inventory,
		Messaging:     messaging,
		Notifications: notifier,
	})
	return &fixture{
		svc:       svc,
		db:        db,
		node:      node,
		clock:     clk,
		inventory: inventory,
		orders:    orders,
		sellers:   sellers,
		notifier:  notifier,
		sellerID:  node.Generate(),
		buyerID:   node.Generate(),
	}
}

func (f *fixture) product(t *testing.T, delivery catalogdomain.DeliveryType, codes ...string) catalogdomain.Product {
	t.Helper()
	now := f.clock.Now()
	p := catalogdomain.Product{
		ID:           f.node.Generate(),
		SellerID:     f.sellerID,
		Name:         "Game Code",
		Type:         catalogdomain.ProductTypeGameCode,
		DeliveryType: delivery,
		Price:        testutil.D("10"),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.db.Create(&p).Error)
	if len(codes) > 0 {
		_, err := f.inventory.UploadCodes(context.Background(), inventorydomain.UploadCodesRequest{
			SellerID:  f.sellerID,
			ProductID: p.ID,
			Codes:     codes,
		})
		require.NoError(t, err)
	}
	return p
}

type orderOpts struct {
	method    orderdomain.PaymentMethod
	review    bool
	delayed   *time.Time
	expiresAt *time.Time
}

// order seeds a PENDING order for qty units of p priced at 10 each, with a
// 10% commission.
func (f *fixture) order(t *testing.T, p catalogdomain.Product, qty int, opts orderOpts) orderdomain.Order {
	t.Helper()
	if opts.method == "" {
		opts.method = orderdomain.PaymentMethodCardRedirect
	}
	now := f.clock.Now()
	subtotal := p.Price.Mul(decimal.NewFromInt(int64(qty)))
	commission := subtotal.Mul(testutil.D("0.10")).Round(2)
	o := orderdomain.Order{
		ID:                   f.node.Generate(),
		CheckoutGroupID:      f.node.Generate(),
		BuyerID:              f.buyerID,
		SellerID:             f.sellerID,
		Subtotal:             subtotal,
		ServiceFee:           testutil.D("0.50"),
		Total:                subtotal.Add(testutil.D("0.50")),
		CommissionRate:       testutil.D("0.10"),
		CommissionAmount:     commission,
		SellerEarnings:       subtotal.Sub(commission),
		PaymentMethod:        opts.method,
		PaymentStatus:        orderdomain.PaymentStatusPending,
		Status:               orderdomain.StatusPending,
		RequiresManualReview: opts.review,
		DeliveryScheduledAt:  opts.delayed,
		ExpiresAt:            opts.expiresAt,
		RefundedAmount:       decimal.Zero,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	ctx := context.Background()
	require.NoError(t, f.orders.Insert(ctx, f.db, &o))
	require.NoError(t, f.orders.InsertItems(ctx, f.db, []orderdomain.OrderItem{{
		ID:           f.node.Generate(),
		OrderID:      o.ID,
		ProductID:    p.ID,
		ProductName:  p.Name,
		ProductType:  p.Type,
		DeliveryType: p.DeliveryType,
		UnitPrice:    p.Price,
		Quantity:     qty,
		Total:        subtotal,
		CreatedAt:    now,
	}}))
	require.NoError(t, f.orders.InsertPayment(ctx, f.db, &orderdomain.Payment{
		ID:              f.node.Generate(),
		OrderID:         o.ID,
		CheckoutGroupID: o.CheckoutGroupID,
		Method:          opts.method,
		Amount:          o.Total,
		Status:          orderdomain.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}))
	return o
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *orderdomain.Order {
	t.Helper()
	o, err := f.orders.FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, o)
	return o
}

func (f *fixture) payment(t *testing.T, orderID snowflake.ID) *orderdomain.Payment {
	t.Helper()
	p, err := f.orders.FindPayment(context.Background(), f.db, orderID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func (f *fixture) seller(t *testing.T) *sellerdomain.SellerProfile {
	t.Helper()
	p, err := f.sellers.Get(context.Background(), f.db, f.sellerID)
	require.NoError(t, err)
	return p
}

func (f *fixture) countCodes(t *testing.T, productID snowflake.ID, status inventorydomain.UnitStatus) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Table("product_codes").Where("product_id = ? AND status = ?", productID, status).Count(&n).Error)
	return n
}

func TestFulfillOrderIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, catalogdomain.DeliveryTypeInstant, "AAA-1", "AAA-2", "AAA-3")
	o := f.order(t, p, 2, orderOpts{})

	res, err := f.svc.FulfillOrder(ctx, o.ID, "cs_live_1")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, res.Status)
	assert.False(t, res.AlreadyFinal)
	assert.Equal(t, 2, res.Delivered)

	again, err := f.svc.FulfillOrder(ctx, o.ID, "cs_live_1")
	require.NoError(t, err)
	assert.True(t, again.AlreadyFinal)
	assert.Equal(t, orderdomain.StatusCompleted, again.Status)

	stored := f.reload(t, o.ID)
	assert.Equal(t, orderdomain.PaymentStatusCompleted, stored.PaymentStatus)
	assert.NotNil(t, stored.FulfilledAt)
	assert.NotNil(t, stored.CompletedAt)

	pay := f.payment(t, o.ID)
	assert.Equal(t, orderdomain.PaymentStatusCompleted, pay.Status)
	require.NotNil(t, pay.ExternalID)
	assert.Equal(t, "cs_live_1", *pay.ExternalID)

	profile := f.seller(t)
	require.NotNil(t, profile)
	testutil.DecimalEqual(t, "18", profile.AvailableBalance)
	testutil.DecimalEqual(t, "18", profile.TotalEarnings)
	assert.Equal(t, 1, profile.TotalSales)

	assert.Equal(t, int64(2), f.countCodes(t, p.ID, inventorydomain.UnitStatusSold))
	assert.Equal(t, int64(1), f.countCodes(t, p.ID, inventorydomain.UnitStatusAvailable))

	product, err := catalogrepo.Provide().FindByID(ctx, f.db, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, product.SoldCount)

	items, err := f.orders.ListItems(ctx, f.db, o.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsDelivered)

	assert.Len(t, f.notifier.fulfilled, 1)
}

func TestFulfillOrderDefersInsideDelayWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, catalogdomain.DeliveryTypeInstant, "BBB-1")
	scheduled := f.clock.Now().Add(30 * time.Minute)
	o := f.order(t, p, 1, orderOpts{delayed: &scheduled})

	res, err := f.svc.FulfillOrder(ctx, o.ID, "")
	require.NoError(t, err)
	assert.True(t, res.Deferred)
	assert.Equal(t, orderdomain.StatusProcessing, res.Status)

	stored := f.reload(t, o.ID)
	assert.Equal(t, orderdomain.StatusProcessing, stored.Status)
	assert.Equal(t, orderdomain.PaymentStatusCompleted, stored.PaymentStatus)
	assert.Nil(t, stored.FulfilledAt)
	assert.Nil(t, f.seller(t))
	assert.Equal(t, int64(1), f.countCodes(t, p.ID, inventorydomain.UnitStatusAvailable))
	assert.Empty(t, f.notifier.fulfilled)

	resumed, err := f.svc.ResumeDeferred(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, resumed)

	f.clock.Advance(31 * time.Minute)
	resumed, err = f.svc.ResumeDeferred(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	stored = f.reload(t, o.ID)
	assert.Equal(t, orderdomain.StatusCompleted, stored.Status)
	assert.Equal(t, int64(1), f.countCodes(t, p.ID, inventorydomain.UnitStatusSold))
	testutil.DecimalEqual(t, "9", f.seller(t).AvailableBalance)
}

func TestFulfillOrderStagesDeliveryForReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, catalogdomain.DeliveryTypeInstant, "CCC-1")
	o := f.order(t, p, 1, orderOpts{review: true})

	res, err := f.svc.FulfillOrder(ctx, o.ID, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusUnderReview, res.Status)

	stored := f.reload(t, o.ID)
	assert.Equal(t, orderdomain.StatusUnderReview, stored.Status)
	assert.NotNil(t, stored.FulfilledAt)
	assert.Nil(t, stored.CompletedAt)
	testutil.DecimalEqual(t, "9", f.seller(t).AvailableBalance)

	again, err := f.svc.FulfillOrder(ctx, o.ID, "ref-1")
	require.NoError(t, err)
	assert.True(t, again.AlreadyFinal)
	assert.Equal(t, orderdomain.StatusUnderReview, again.Status)

	adminID := f.node.Generate()
	forced, err := f.svc.ForceComplete(ctx, o.ID, domain.ForceOptions{ReviewerID: adminID, Note: "verified buyer"})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, forced.Status)
	assert.Zero(t, forced.Delivered)

	stored = f.reload(t, o.ID)
	assert.Equal(t, orderdomain.StatusCompleted, stored.Status)
	require.NotNil(t, stored.ReviewedBy)
	assert.Equal(t, adminID, *stored.ReviewedBy)
	assert.Equal(t, "verified buyer", stored.ReviewNote)

	profile := f.seller(t)
	testutil.DecimalEqual(t, "9", profile.AvailableBalance)
	assert.Equal(t, 1, profile.TotalSales)
	assert.Equal(t, int64(1), f.countCodes(t, p.ID, inventorydomain.UnitStatusSold))
	assert.Len(t, f.notifier.fulfilled, 2)
}

func TestFulfillOrderShortfallRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, catalogdomain.DeliveryTypeInstant, "DDD-1")
	o := f.order(t, p, 2, orderOpts{})

	_, err := f.svc.FulfillOrder(ctx, o.ID, "ext-9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, inventorydomain.ErrAllocationShortfall))

	stored := f.reload(t, o.ID)
	assert.Equal(t, orderdomain.StatusPending, stored.Status)
	assert.Equal(t, orderdomain.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, orderdomain.PaymentStatusPending, f.payment(t, o.ID).Status)
	assert.Equal(t, int64(1), f.countCodes(t, p.ID, inventorydomain.UnitStatusAvailable))
	assert.Nil(t, f.seller(t))
	assert.Empty(t, f.notifier.fulfilled)
}

func TestFulfillOrderManualItemOpensConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, catalogdomain.DeliveryTypeManual)
	o := f.order(t, p, 1, orderOpts{method: orderdomain.PaymentMethodWalletBalance})

	res, err := f.svc.FulfillOrder(ctx, o.ID, "")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, res.Status)
	assert.Zero(t, res.Delivered)

	var conversations, messages int64
	require.NoError(t, f.db.Table("conversations").Where("buyer_id = ? AND seller_id = ?", f.buyerID, f.sellerID).Count(&conversations).Error)
	require.NoError(t, f.db.Table("messages").Where("order_id = ? AND is_system = ?", o.ID, true).Count(&messages).Error)
	assert.Equal(t, int64(1), conversations)
	assert.Equal(t, int64(1), messages)

	items, err := f.orders.ListItems(ctx, f.db, o.ID)
	require.NoError(t, err)
	assert.False(t, items[0].IsDelivered)
}

func TestForceCompleteRequiresSettledPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, catalogdomain.DeliveryTypeInstant, "EEE-1")
	o := f.order(t, p, 1, orderOpts{review: true})

	_, err := f.svc.ForceComplete(ctx, o.ID, domain.ForceOptions{ReviewerID: f.node.Generate()})
	assert.ErrorIs(t, err, domain.ErrPaymentNotSettled)

	_, err = f.svc.ForceComplete(ctx, o.ID, domain.ForceOptions{})
	assert.ErrorIs(t, err, domain.ErrNotForceable)

	_, err = f.svc.FulfillOrder(ctx, f.node.Generate(), "")
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
}

func TestExpireCheckoutsCancelsLapsedSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, catalogdomain.DeliveryTypeInstant, "FFF-1", "FFF-2")
	expires := f.clock.Now().Add(time.Hour)
	card := f.order(t, p, 1, orderOpts{expiresAt: &expires})
	crypto := f.order(t, p, 1, orderOpts{method: orderdomain.PaymentMethodCryptoTransfer, expiresAt: &expires})

	n, err := f.svc.ExpireCheckouts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(61 * time.Minute)
	n, err = f.svc.ExpireCheckouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored := f.reload(t, card.ID)
	assert.Equal(t, orderdomain.StatusCancelled, stored.Status)
	assert.Equal(t, orderdomain.PaymentStatusFailed, stored.PaymentStatus)
	assert.Equal(t, domain.CancelReasonPaymentExpired, stored.CancelReason)
	assert.Equal(t, orderdomain.PaymentStatusFailed, f.payment(t, card.ID).Status)
	assert.Equal(t, orderdomain.StatusPending, f.reload(t, crypto.ID).Status)
	assert.Len(t, f.notifier.cancelled, 1)

	// A late webhook must not resurrect the cancelled order.
	res, err := f.svc.FulfillOrder(ctx, card.ID, "late")
	require.NoError(t, err)
	assert.True(t, res.AlreadyFinal)
	assert.Equal(t, orderdomain.StatusCancelled, res.Status)
}

func TestFulfillGroupCompletesEverySellerOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, catalogdomain.DeliveryTypeInstant, "GGG-1", "GGG-2")
	first := f.order(t, p, 1, orderOpts{})
	second := f.order(t, p, 1, orderOpts{})
	require.NoError(t, f.db.Exec(`UPDATE orders SET checkout_group_id = ? WHERE id = ?`, first.CheckoutGroupID, second.ID).Error)
	require.NoError(t, f.db.Exec(`UPDATE payments SET checkout_group_id = ? WHERE order_id = ?`, first.CheckoutGroupID, second.ID).Error)

	results, err := f.svc.FulfillGroup(ctx, first.CheckoutGroupID, "grp-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, orderdomain.StatusCompleted, res.Status, fmt.Sprintf("order %s", res.OrderID))
	}

	expired, err := f.svc.ExpireGroup(ctx, first.CheckoutGroupID, domain.CancelReasonSessionExpired)
	require.NoError(t, err)
	assert.Zero(t, expired)
}
