package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	frauddomain "github.com/smallbiznis/digimart/internal/fraud/domain"
	fraudservice "github.com/smallbiznis/digimart/internal/fraud/service"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	orderrepo "github.com/smallbiznis/digimart/internal/order/repository"
	"github.com/smallbiznis/digimart/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var now = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

func newAssessor(t *testing.T, platform config.PlatformConfig) (frauddomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.Node(t)
	svc, err := fraudservice.NewService(fraudservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(now),
		Platform: config.StaticPlatform(platform),
		Orders:   orderrepo.Provide(),
	})
	require.NoError(t, err)
	return svc, db, node
}

func seedOrder(t *testing.T, db *gorm.DB, node *snowflake.Node, buyerID snowflake.ID, createdAt time.Time) {
	t.Helper()
	err := orderrepo.Provide().Insert(context.Background(), db, &orderdomain.Order{
		ID:              node.Generate(),
		CheckoutGroupID: node.Generate(),
		BuyerID:         buyerID,
		SellerID:        node.Generate(),
		PaymentMethod:   orderdomain.PaymentMethodWalletBalance,
		PaymentStatus:   orderdomain.PaymentStatusCompleted,
		Status:          orderdomain.StatusCompleted,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	})
	require.NoError(t, err)
}

func TestAssessLowValueIsClean(t *testing.T) {
	svc, _, node := newAssessor(t, config.DefaultPlatformConfig())

	got, err := svc.Assess(context.Background(), frauddomain.Input{
		BuyerID:   node.Generate(),
		Total:     testutil.D("49.99"),
		Method:    orderdomain.PaymentMethodCardRedirect,
		ItemCount: 1,
	})
	require.NoError(t, err)
	assert.False(t, got.IsHighValue)
	assert.False(t, got.RequiresManualReview)
	assert.False(t, got.ShouldDelay)
	assert.Zero(t, got.DelayMinutes)
}

func TestAssessHighValueReversibleNeedsReview(t *testing.T) {
	svc, _, node := newAssessor(t, config.DefaultPlatformConfig())

	got, err := svc.Assess(context.Background(), frauddomain.Input{
		BuyerID: node.Generate(),
		Total:   testutil.D("600"),
		Method:  orderdomain.PaymentMethodCardRedirect,
	})
	require.NoError(t, err)
	assert.True(t, got.IsHighValue)
	assert.True(t, got.RequiresManualReview)
	assert.True(t, got.ShouldDelay)
	assert.Equal(t, 60, got.DelayMinutes)
	assert.Contains(t, got.Reasons, frauddomain.ReasonHighValueReversible)
}

func TestAssessHighValueIrreversibleOnlyDelays(t *testing.T) {
	svc, _, node := newAssessor(t, config.DefaultPlatformConfig())

	got, err := svc.Assess(context.Background(), frauddomain.Input{
		BuyerID: node.Generate(),
		Total:   testutil.D("600"),
		Method:  orderdomain.PaymentMethodCryptoTransfer,
	})
	require.NoError(t, err)
	assert.True(t, got.IsHighValue)
	assert.False(t, got.RequiresManualReview)
	assert.True(t, got.ShouldDelay)
	assert.Equal(t, 60, got.DelayMinutes)
}

func TestAssessManualThreshold(t *testing.T) {
	svc, _, node := newAssessor(t, config.DefaultPlatformConfig())

	got, err := svc.Assess(context.Background(), frauddomain.Input{
		BuyerID: node.Generate(),
		Total:   testutil.D("2000"),
		Method:  orderdomain.PaymentMethodWalletBalance,
	})
	require.NoError(t, err)
	assert.True(t, got.RequiresManualReview)
	assert.Equal(t, []string{frauddomain.ReasonManualThreshold}, got.Reasons)
}

func TestAssessVelocityCountsOnlyWindow(t *testing.T) {
	svc, db, node := newAssessor(t, config.DefaultPlatformConfig())
	buyerID := node.Generate()

	for i := 0; i < 4; i++ {
		seedOrder(t, db, node, buyerID, now.Add(-time.Duration(i+1)*time.Minute))
	}
	seedOrder(t, db, node, buyerID, now.Add(-2*time.Hour))

	got, err := svc.Assess(context.Background(), frauddomain.Input{BuyerID: buyerID, Total: testutil.D("5"), Method: orderdomain.PaymentMethodWalletBalance})
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Velocity)
	assert.False(t, got.RequiresManualReview)

	seedOrder(t, db, node, buyerID, now.Add(-10*time.Second))
	got, err = svc.Assess(context.Background(), frauddomain.Input{BuyerID: buyerID, Total: testutil.D("5"), Method: orderdomain.PaymentMethodWalletBalance})
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Velocity)
	assert.True(t, got.RequiresManualReview)
	assert.True(t, got.ShouldDelay)
	assert.Equal(t, 30, got.DelayMinutes)
	assert.Contains(t, got.Reasons, frauddomain.ReasonVelocity)
}

func TestAssessCELRules(t *testing.T) {
	platform := config.DefaultPlatformConfig()
	platform.Fraud.Rules = []config.FraudRule{
		{Name: "bulk_wallet", Expression: `item_count > 10 && method == "WALLET_BALANCE"`},
		{Name: "broken", Expression: `total +`},
		{Name: "not_bool", Expression: `total * 2.0`},
	}
	svc, _, node := newAssessor(t, platform)

	got, err := svc.Assess(context.Background(), frauddomain.Input{
		BuyerID:   node.Generate(),
		Total:     testutil.D("20"),
		Method:    orderdomain.PaymentMethodWalletBalance,
		ItemCount: 12,
	})
	require.NoError(t, err)
	assert.True(t, got.RequiresManualReview)
	assert.Equal(t, []string{"rule:bulk_wallet"}, got.Reasons)

	got, err = svc.Assess(context.Background(), frauddomain.Input{
		BuyerID:   node.Generate(),
		Total:     testutil.D("20"),
		Method:    orderdomain.PaymentMethodCardRedirect,
		ItemCount: 12,
	})
	require.NoError(t, err)
	assert.False(t, got.RequiresManualReview)
}
