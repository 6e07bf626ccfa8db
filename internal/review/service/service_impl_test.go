package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/digimart/internal/audit/domain"
	checkoutdomain "github.com/smallbiznis/digimart/internal/checkout/domain"
	"github.com/smallbiznis/digimart/internal/config"
	inventorydomain "github.com/smallbiznis/digimart/internal/inventory/domain"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	"github.com/smallbiznis/digimart/internal/review/domain"
	"github.com/smallbiznis/digimart/internal/review/service"
	"github.com/smallbiznis/digimart/internal/testutil"
	"github.com/smallbiznis/digimart/internal/testutil/harness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	m       *harness.Market
	svc     domain.Service
	buyer   snowflake.ID
	seller  snowflake.ID
	admin   snowflake.ID
	product snowflake.ID
}

// newFixture holds every order of 100 or more for review.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	platform := config.DefaultPlatformConfig()
	platform.Fraud.ManualReviewThreshold = 100
	m := harness.New(t, harness.WithPlatform(platform))

	f := &fixture{
		m: m,
		svc: service.NewService(service.Params{
			DB:            m.DB,
			Log:           m.Log,
			Clock:         m.Clock,
			Orders:        m.Orders,
			Products:      m.Products,
			Sellers:       m.Sellers,
			Inventory:     m.Inventory,
			Wallet:        m.Wallet,
			Fulfillment:   m.Fulfillment,
			Audit:         m.Audit,
			Notifications: m.Notifications,
		}),
		buyer:  m.Node.Generate(),
		seller: m.Node.Generate(),
		admin:  m.Node.Generate(),
	}
	f.product = m.Product(t, harness.ProductSpec{
		SellerID: f.seller,
		Name:     "Software License",
		Price:    "100",
		Codes:    []string{"LIC-1", "LIC-2"},
	}).ID
	return f
}

// held checks out one license with the wallet: total 103.00, earnings 90.00.
func (f *fixture) held(t *testing.T) snowflake.ID {
	t.Helper()
	f.m.Fund(t, f.buyer, "200")
	ids := f.m.Buy(t, f.buyer, orderdomain.PaymentMethodWalletBalance, checkoutdomain.CartItem{ProductID: f.product, Quantity: 1})
	require.Len(t, ids, 1)
	order := f.m.Order(t, ids[0])
	require.True(t, order.RequiresManualReview)
	require.Equal(t, orderdomain.StatusProcessing, order.Status)
	testutil.DecimalEqual(t, "103", order.Total)
	return ids[0]
}

// staged lets the delay window pass so delivery runs and the order parks in UNDER_REVIEW.
func (f *fixture) staged(t *testing.T) snowflake.ID {
	t.Helper()
	id := f.held(t)
	f.m.Clock.Advance(31 * time.Minute)
	n, err := f.m.Fulfillment.ResumeDeferred(context.Background(), f.m.Clock.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	order := f.m.Order(t, id)
	require.Equal(t, orderdomain.StatusUnderReview, order.Status)
	require.True(t, order.Fulfilled())
	testutil.DecimalEqual(t, "90", f.m.Seller(t, f.seller).AvailableBalance)
	return id
}

func TestRejectReversesStagedOrder(t *testing.T) {
	f := newFixture(t)
	id := f.staged(t)
	testutil.DecimalEqual(t, "97", f.m.Balance(t, f.buyer))

	got, err := f.svc.Review(context.Background(), domain.Request{
		AdminID: f.admin,
		OrderID: id,
		Action:  domain.ActionReject,
		Reason:  "stolen card pattern",
	})
	require.NoError(t, err)
	testutil.DecimalEqual(t, "103", got.Credited)
	testutil.DecimalEqual(t, "90", got.SellerReversed)
	assert.Equal(t, int64(1), got.Suspended)

	order := f.m.Order(t, id)
	assert.Equal(t, orderdomain.StatusCancelled, order.Status)
	assert.Equal(t, orderdomain.PaymentStatusRefunded, order.PaymentStatus)
	assert.Equal(t, domain.CancelReasonRejected, order.CancelReason)
	require.NotNil(t, order.ReviewedBy)
	assert.Equal(t, f.admin, *order.ReviewedBy)
	assert.Equal(t, "stolen card pattern", order.ReviewNote)
	assert.Equal(t, orderdomain.PaymentStatusRefunded, f.m.Payment(t, id).Status)

	testutil.DecimalEqual(t, "200", f.m.Balance(t, f.buyer))
	seller := f.m.Seller(t, f.seller)
	testutil.DecimalEqual(t, "0", seller.AvailableBalance)
	assert.Zero(t, seller.TotalSales)
	assert.Equal(t, int64(1), f.m.CountCodes(t, f.product, inventorydomain.UnitStatusSuspended))

	var logs []auditdomain.AuditLog
	require.NoError(t, f.m.DB.Where("action = ?", auditdomain.ActionOrderReviewReject).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, string(auditdomain.ActorTypeAdmin), logs[0].ActorType)
	assert.Equal(t, "103.00", logs[0].Metadata["credited"])
	assert.Equal(t, "stolen card pattern", logs[0].Metadata["reason"])

	_, err = f.svc.Reject(context.Background(), f.admin, id, "again")
	assert.ErrorIs(t, err, domain.ErrNotUnderReview)
	testutil.DecimalEqual(t, "200", f.m.Balance(t, f.buyer))
}

func TestRejectBeforeDeliveryOnlyRefundsBuyer(t *testing.T) {
	f := newFixture(t)
	id := f.held(t)

	got, err := f.svc.Reject(context.Background(), f.admin, id, "")
	require.NoError(t, err)
	testutil.DecimalEqual(t, "103", got.Credited)
	assert.True(t, got.SellerReversed.IsZero())
	assert.Zero(t, got.Suspended)

	testutil.DecimalEqual(t, "200", f.m.Balance(t, f.buyer))
	assert.Equal(t, int64(2), f.m.CountCodes(t, f.product, inventorydomain.UnitStatusAvailable))
}

func TestApproveStagedOrderKeepsSingleCredit(t *testing.T) {
	f := newFixture(t)
	id := f.staged(t)

	got, err := f.svc.Approve(context.Background(), f.admin, id, "verified by phone")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, got.Status)

	order := f.m.Order(t, id)
	assert.Equal(t, orderdomain.StatusCompleted, order.Status)
	require.NotNil(t, order.CompletedAt)
	require.NotNil(t, order.ReviewedBy)
	assert.Equal(t, f.admin, *order.ReviewedBy)

	seller := f.m.Seller(t, f.seller)
	testutil.DecimalEqual(t, "90", seller.AvailableBalance)
	assert.Equal(t, 1, seller.TotalSales)
	assert.Equal(t, int64(1), f.m.CountCodes(t, f.product, inventorydomain.UnitStatusSold))
	var approvals int64
	require.NoError(t, f.m.DB.Model(&auditdomain.AuditLog{}).Where("action = ?", auditdomain.ActionOrderReviewApprove).Count(&approvals).Error)
	assert.Equal(t, int64(1), approvals)
}

func TestApproveHeldOrderDeliversImmediately(t *testing.T) {
	f := newFixture(t)
	id := f.held(t)

	got, err := f.svc.Approve(context.Background(), f.admin, id, "")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, got.Status)

	order := f.m.Order(t, id)
	assert.True(t, order.Fulfilled())
	testutil.DecimalEqual(t, "90", f.m.Seller(t, f.seller).AvailableBalance)
	assert.Equal(t, int64(1), f.m.CountCodes(t, f.product, inventorydomain.UnitStatusSold))
}

func TestReviewRejectsOrdersOutsideReview(t *testing.T) {
	f := newFixture(t)
	cheap := f.m.Product(t, harness.ProductSpec{SellerID: f.seller, Price: "5", Codes: []string{"C-1"}})
	f.m.Fund(t, f.buyer, "10")
	ids := f.m.Buy(t, f.buyer, orderdomain.PaymentMethodWalletBalance, checkoutdomain.CartItem{ProductID: cheap.ID, Quantity: 1})
	require.Equal(t, orderdomain.StatusCompleted, f.m.Order(t, ids[0]).Status)

	_, err := f.svc.Approve(context.Background(), f.admin, ids[0], "")
	assert.ErrorIs(t, err, domain.ErrNotUnderReview)
	_, err = f.svc.Reject(context.Background(), f.admin, ids[0], "")
	assert.ErrorIs(t, err, domain.ErrNotUnderReview)
	_, err = f.svc.Reject(context.Background(), f.admin, f.m.Node.Generate(), "")
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
	_, err = f.svc.Review(context.Background(), domain.Request{AdminID: f.admin, OrderID: ids[0], Action: "escalate"})
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
}
