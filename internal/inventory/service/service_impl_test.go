package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/digimart/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/digimart/internal/catalog/repository"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	"github.com/smallbiznis/digimart/internal/inventory/domain"
	"github.com/smallbiznis/digimart/internal/inventory/repository"
	"github.com/smallbiznis/digimart/internal/inventory/sealer"
	"github.com/smallbiznis/digimart/internal/inventory/service"
	"github.com/smallbiznis/digimart/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc    domain.Service
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	sealer *sealer.Sealer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s, err := sealer.New("inventory-test-key")
	require.NoError(t, err)

	svc := service.NewService(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Platform: config.StaticPlatform(config.DefaultPlatformConfig()),
		Repo:     repository.Provide(),
		Products: catalogrepo.Provide(),
		Sealer:   s,
	})
	return &fixture{svc: svc, db: db, node: node, clock: clk, sealer: s}
}

func (f *fixture) product(t *testing.T, sellerID snowflake.ID, delivery catalogdomain.DeliveryType) snowflake.ID {
	t.Helper()
	now := f.clock.Now()
	p := catalogdomain.Product{
		ID:           f.node.Generate(),
		SellerID:     sellerID,
		Name:         "Steam Wallet 20",
		Type:         catalogdomain.ProductTypeGiftCard,
		DeliveryType: delivery,
		Price:        testutil.D("20"),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p.ID
}

func (f *fixture) uploadCodes(t *testing.T, sellerID, productID snowflake.ID, codes ...string) {
	t.Helper()
	for _, code := range codes {
		_, err := f.svc.UploadCodes(context.Background(), domain.UploadCodesRequest{
			SellerID:  sellerID,
			ProductID: productID,
			Codes:     []string{code},
		})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
}

func (f *fixture) allocate(t *testing.T, req domain.AllocationRequest) (domain.Allocation, error) {
	t.Helper()
	var out domain.Allocation
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = f.svc.Allocate(context.Background(), tx, req)
		return err
	})
	return out, err
}

func TestUploadCodesDedupes(t *testing.T) {
	f := newFixture(t)
	sellerID := f.node.Generate()
	productID := f.product(t, sellerID, catalogdomain.DeliveryTypeInstant)
	ctx := context.Background()

	res, err := f.svc.UploadCodes(ctx, domain.UploadCodesRequest{
		SellerID:  sellerID,
		ProductID: productID,
		Codes:     []string{"AAA-111", " AAA-111 ", "BBB-222", "", "CCC-333"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Added)
	assert.Equal(t, 1, res.Duplicates)

	res, err = f.svc.UploadCodes(ctx, domain.UploadCodesRequest{
		SellerID:  sellerID,
		ProductID: productID,
		Codes:     []string{"BBB-222", "DDD-444"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Duplicates)

	available, err := f.svc.Available(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), available)
}

func TestUploadCodesRejections(t *testing.T) {
	f := newFixture(t)
	sellerID := f.node.Generate()
	productID := f.product(t, sellerID, catalogdomain.DeliveryTypeInstant)
	manualID := f.product(t, sellerID, catalogdomain.DeliveryTypeManual)
	ctx := context.Background()

	_, err := f.svc.UploadCodes(ctx, domain.UploadCodesRequest{SellerID: sellerID, ProductID: productID, Codes: []string{" ", ""}})
	assert.ErrorIs(t, err, domain.ErrEmptyUpload)

	tooMany := make([]string, 501)
	for i := range tooMany {
		tooMany[i] = f.node.Generate().String()
	}
	_, err = f.svc.UploadCodes(ctx, domain.UploadCodesRequest{SellerID: sellerID, ProductID: productID, Codes: tooMany})
	assert.ErrorIs(t, err, domain.ErrUploadTooLarge)

	_, err = f.svc.UploadCodes(ctx, domain.UploadCodesRequest{SellerID: f.node.Generate(), ProductID: productID, Codes: []string{"X"}})
	assert.ErrorIs(t, err, domain.ErrNotProductOwner)

	_, err = f.svc.UploadCodes(ctx, domain.UploadCodesRequest{SellerID: sellerID, ProductID: f.node.Generate(), Codes: []string{"X"}})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = f.svc.UploadCodes(ctx, domain.UploadCodesRequest{SellerID: sellerID, ProductID: manualID, Codes: []string{"X"}})
	assert.ErrorIs(t, err, domain.ErrProductNotInstant)
}

func TestAllocateOldestCodesFirst(t *testing.T) {
	f := newFixture(t)
	sellerID := f.node.Generate()
	productID := f.product(t, sellerID, catalogdomain.DeliveryTypeInstant)
	f.uploadCodes(t, sellerID, productID, "FIRST", "SECOND", "THIRD")

	orderID := f.node.Generate()
	alloc, err := f.allocate(t, domain.AllocationRequest{
		ProductID:   productID,
		OrderID:     orderID,
		OrderItemID: f.node.Generate(),
		BuyerID:     f.node.Generate(),
		Quantity:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, alloc.Count())

	units, err := f.svc.DeliveredUnits(context.Background(), orderID)
	require.NoError(t, err)
	require.Len(t, units, 2)
	codes := []string{units[0].Code, units[1].Code}
	assert.ElementsMatch(t, []string{"FIRST", "SECOND"}, codes)
	for _, u := range units {
		assert.Equal(t, domain.UnitStatusSold, u.Status)
	}

	available, err := f.svc.Available(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), available)
}

func TestAllocateShortfallRollsBack(t *testing.T) {
	f := newFixture(t)
	sellerID := f.node.Generate()
	productID := f.product(t, sellerID, catalogdomain.DeliveryTypeInstant)
	f.uploadCodes(t, sellerID, productID, "ONLY")

	_, err := f.allocate(t, domain.AllocationRequest{
		ProductID:   productID,
		OrderID:     f.node.Generate(),
		OrderItemID: f.node.Generate(),
		BuyerID:     f.node.Generate(),
		Quantity:    2,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAllocationShortfall))

	available, err := f.svc.Available(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), available)
}

func TestAllocateProfilesAfterCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sellerID := f.node.Generate()
	productID := f.product(t, sellerID, catalogdomain.DeliveryTypeInstant)
	f.uploadCodes(t, sellerID, productID, "CODE-1")

	res, err := f.svc.UploadAccounts(ctx, domain.UploadAccountsRequest{
		SellerID:  sellerID,
		ProductID: productID,
		Accounts: []domain.AccountInput{
			{Email: "family@example.com", Password: "hunter2", MaxProfiles: 2},
			{Email: "FAMILY@example.com", Password: "other", MaxProfiles: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Duplicates)

	available, err := f.svc.Available(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), available)

	orderID := f.node.Generate()
	alloc, err := f.allocate(t, domain.AllocationRequest{
		ProductID:   productID,
		OrderID:     orderID,
		OrderItemID: f.node.Generate(),
		BuyerID:     f.node.Generate(),
		Quantity:    3,
	})
	require.NoError(t, err)
	assert.Len(t, alloc.CodeIDs, 1)
	require.Len(t, alloc.Profiles, 2)
	assert.Equal(t, 1, alloc.Profiles[0].ProfileNo)
	assert.Equal(t, 2, alloc.Profiles[1].ProfileNo)

	units, err := f.svc.DeliveredUnits(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, "CODE-1", units[0].Code)
	assert.Equal(t, "family@example.com", units[1].Email)
	assert.Equal(t, "hunter2", units[1].Password)

	var stored domain.ProductAccount
	require.NoError(t, f.db.Where("product_id = ?", productID).First(&stored).Error)
	assert.NotEqual(t, "hunter2", stored.SealedPassword)
	assert.Equal(t, domain.UnitStatusSold, stored.Status)
	assert.Equal(t, 0, stored.RemainingProfiles())
}

func TestSuspendForOrderHidesCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sellerID := f.node.Generate()
	productID := f.product(t, sellerID, catalogdomain.DeliveryTypeInstant)

	_, err := f.svc.UploadAccounts(ctx, domain.UploadAccountsRequest{
		SellerID:  sellerID,
		ProductID: productID,
		Accounts:  []domain.AccountInput{{Email: "solo@example.com", Password: "pw"}},
	})
	require.NoError(t, err)

	orderID := f.node.Generate()
	_, err = f.allocate(t, domain.AllocationRequest{
		ProductID:   productID,
		OrderID:     orderID,
		OrderItemID: f.node.Generate(),
		BuyerID:     f.node.Generate(),
		Quantity:    1,
	})
	require.NoError(t, err)

	var suspended int64
	err = f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		suspended, err = f.svc.SuspendForOrder(ctx, tx, orderID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), suspended)

	units, err := f.svc.DeliveredUnits(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, domain.UnitStatusSuspended, units[0].Status)
	assert.Empty(t, units[0].Password)
}

func TestUploadAccountsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sellerID := f.node.Generate()
	productID := f.product(t, sellerID, catalogdomain.DeliveryTypeInstant)

	cases := []struct {
		name  string
		input domain.AccountInput
	}{
		{name: "bad email", input: domain.AccountInput{Email: "not-an-email", Password: "pw"}},
		{name: "missing password", input: domain.AccountInput{Email: "a@example.com"}},
		{name: "too many profiles", input: domain.AccountInput{Email: "a@example.com", Password: "pw", MaxProfiles: 11}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.UploadAccounts(ctx, domain.UploadAccountsRequest{
				SellerID:  sellerID,
				ProductID: productID,
				Accounts:  []domain.AccountInput{tc.input},
			})
			assert.ErrorIs(t, err, domain.ErrInvalidAccount)
		})
	}

	_, err := f.svc.UploadAccounts(ctx, domain.UploadAccountsRequest{SellerID: sellerID, ProductID: productID})
	assert.ErrorIs(t, err, domain.ErrEmptyUpload)
}
