// Package harness wires the marketplace services over an in-memory database
// for cross-package scenario tests.
package harness

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/digimart/internal/audit/domain"
	auditrepo "github.com/smallbiznis/digimart/internal/audit/repository"
	auditservice "github.com/smallbiznis/digimart/internal/audit/service"
	catalogdomain "github.com/smallbiznis/digimart/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/digimart/internal/catalog/repository"
	checkoutdomain "github.com/smallbiznis/digimart/internal/checkout/domain"
	checkoutservice "github.com/smallbiznis/digimart/internal/checkout/service"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	frauddomain "github.com/smallbiznis/digimart/internal/fraud/domain"
	fraudservice "github.com/smallbiznis/digimart/internal/fraud/service"
	fulfillmentdomain "github.com/smallbiznis/digimart/internal/fulfillment/domain"
	fulfillmentservice "github.com/smallbiznis/digimart/internal/fulfillment/service"
	inventorydomain "github.com/smallbiznis/digimart/internal/inventory/domain"
	inventoryrepo "github.com/smallbiznis/digimart/internal/inventory/repository"
	"github.com/smallbiznis/digimart/internal/inventory/sealer"
	inventoryservice "github.com/smallbiznis/digimart/internal/inventory/service"
	"github.com/smallbiznis/digimart/internal/memo"
	messagingrepo "github.com/smallbiznis/digimart/internal/messaging/repository"
	messagingservice "github.com/smallbiznis/digimart/internal/messaging/service"
	notificationrepo "github.com/smallbiznis/digimart/internal/notification/repository"
	notificationservice "github.com/smallbiznis/digimart/internal/notification/service"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	orderrepo "github.com/smallbiznis/digimart/internal/order/repository"
	"github.com/smallbiznis/digimart/internal/payment/adapters"
	"github.com/smallbiznis/digimart/internal/payment/adapters/sandbox"
	"github.com/smallbiznis/digimart/internal/payment/adapters/walletbalance"
	"github.com/smallbiznis/digimart/internal/providers/email"
	"github.com/smallbiznis/digimart/internal/providers/pdf"
	sellerdomain "github.com/smallbiznis/digimart/internal/seller/domain"
	sellerrepo "github.com/smallbiznis/digimart/internal/seller/repository"
	"github.com/smallbiznis/digimart/internal/testutil"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
	walletrepo "github.com/smallbiznis/digimart/internal/wallet/repository"
	walletservice "github.com/smallbiznis/digimart/internal/wallet/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var StartTime = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type Market struct {
	DB       *gorm.DB
	Node     *snowflake.Node
	Clock    *clock.FakeClock
	Platform config.PlatformConfig
	Cfg      config.Config
	Log      *zap.Logger

	Products      catalogdomain.Repository
	Orders        orderdomain.Repository
	Sellers       sellerdomain.Repository
	WalletRepo    walletdomain.Repository
	Inventory     inventorydomain.Service
	Wallet        walletdomain.Service
	Deposits      walletdomain.DepositService
	Fraud         frauddomain.Service
	Fulfillment   fulfillmentdomain.Service
	Notifications *notificationservice.Service
	Audit         auditdomain.Service
	Registry      *adapters.Registry
	Memo          *memo.Issuer
}

type Option func(*Market)

func WithPlatform(cfg config.PlatformConfig) Option {
	return func(m *Market) { m.Platform = cfg }
}

func WithConfig(cfg config.Config) Option {
	return func(m *Market) { m.Cfg = cfg }
}

// New builds a market with the wallet adapter registered and every other
// method settling through the sandbox adapter.
func New(t testing.TB, opts ...Option) *Market {
	t.Helper()
	m := &Market{
		DB:       testutil.NewDB(t),
		Node:     testutil.Node(t),
		Clock:    clock.NewFakeClock(StartTime),
		Platform: config.DefaultPlatformConfig(),
		Log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	platform := config.StaticPlatform(m.Platform)

	m.Products = catalogrepo.Provide()
	m.Orders = orderrepo.Provide()
	m.Sellers = sellerrepo.Provide()
	m.WalletRepo = walletrepo.Provide()
	m.Memo = memo.NewIssuer(m.DB)

	m.Audit = auditservice.NewService(auditservice.Params{
		DB:    m.DB,
		Log:   m.Log,
		GenID: m.Node,
		Repo:  auditrepo.Provide(),
		Clock: m.Clock,
	})

	s, err := sealer.New("harness-sealing-key")
	require.NoError(t, err)
	m.Inventory = inventoryservice.NewService(inventoryservice.Params{
		DB:       m.DB,
		Log:      m.Log,
		GenID:    m.Node,
		Clock:    m.Clock,
		Platform: platform,
		Repo:     inventoryrepo.Provide(),
		Products: m.Products,
		Sealer:   s,
		AuditSvc: m.Audit,
	})

	m.Wallet = walletservice.NewService(walletservice.Params{
		DB:    m.DB,
		Log:   m.Log,
		GenID: m.Node,
		Clock: m.Clock,
		Repo:  m.WalletRepo,
	})
	m.Deposits = walletservice.NewDepositService(walletservice.DepositParams{
		DB:       m.DB,
		Log:      m.Log,
		GenID:    m.Node,
		Clock:    m.Clock,
		Cfg:      m.Cfg,
		Platform: platform,
		Repo:     m.WalletRepo,
		Ledger:   m.Wallet,
		Memo:     m.Memo,
	})

	m.Fraud, err = fraudservice.NewService(fraudservice.Params{
		DB:       m.DB,
		Log:      m.Log,
		Clock:    m.Clock,
		Platform: platform,
		Orders:   m.Orders,
	})
	require.NoError(t, err)

	m.Notifications = notificationservice.NewService(notificationservice.Params{
		DB:    m.DB,
		Log:   m.Log,
		GenID: m.Node,
		Clock: m.Clock,
		Repo:  notificationrepo.Provide(),
		Email: &email.NoOpProvider{},
		PDF:   &pdf.NoOpProvider{},
	})
	t.Cleanup(m.Notifications.Wait)

	messaging := messagingservice.NewService(messagingservice.Params{
		DB:    m.DB,
		Log:   m.Log,
		GenID: m.Node,
		Clock: m.Clock,
		Repo:  messagingrepo.Provide(),
	})

	m.Fulfillment = fulfillmentservice.NewService(fulfillmentservice.Params{
		DB:            m.DB,
		Log:           m.Log,
		Clock:         m.Clock,
		Orders:        m.Orders,
		Products:      m.Products,
		Sellers:       m.Sellers,
		Inventory:     m.Inventory,
		Messaging:     messaging,
		Notifications: m.Notifications,
	})

	m.Registry = &adapters.Registry{}
	m.Registry.Register(walletbalance.New(m.Wallet))
	for _, method := range orderdomain.Methods() {
		if _, err := m.Registry.Adapter(method); err != nil {
			m.Registry.Register(sandbox.New(method, sandbox.ReasonNotConfigured))
		}
	}
	return m
}

type ProductSpec struct {
	SellerID     snowflake.ID
	Name         string
	Type         catalogdomain.ProductType
	Delivery     catalogdomain.DeliveryType
	Price        string
	DurationDays int
	Codes        []string
	Inactive     bool
}

// Product inserts a listing and uploads its codes.
func (m *Market) Product(t testing.TB, ps ProductSpec) catalogdomain.Product {
	t.Helper()
	if ps.SellerID == 0 {
		ps.SellerID = m.Node.Generate()
	}
	if ps.Name == "" {
		ps.Name = "Digital Item"
	}
	if ps.Type == "" {
		ps.Type = catalogdomain.ProductTypeGameCode
	}
	if ps.Delivery == "" {
		ps.Delivery = catalogdomain.DeliveryTypeInstant
	}
	if ps.Price == "" {
		ps.Price = "10"
	}
	now := m.Clock.Now()
	p := catalogdomain.Product{
		ID:           m.Node.Generate(),
		SellerID:     ps.SellerID,
		Name:         ps.Name,
		Type:         ps.Type,
		DeliveryType: ps.Delivery,
		Price:        testutil.D(ps.Price),
		DurationDays: ps.DurationDays,
		IsActive:     !ps.Inactive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, m.DB.Create(&p).Error)
	if ps.Inactive {
		require.NoError(t, m.DB.Model(&catalogdomain.Product{}).Where("id = ?", p.ID).Update("is_active", false).Error)
	}
	if len(ps.Codes) > 0 {
		_, err := m.Inventory.UploadCodes(context.Background(), inventorydomain.UploadCodesRequest{
			SellerID:  ps.SellerID,
			ProductID: p.ID,
			Codes:     ps.Codes,
		})
		require.NoError(t, err)
	}
	return p
}

// Fund credits a wallet through the ledger.
func (m *Market) Fund(t testing.TB, userID snowflake.ID, amount string) {
	t.Helper()
	_, err := m.Wallet.Credit(context.Background(), walletdomain.EntryRequest{
		UserID: userID,
		Type:   walletdomain.TransactionAdjustmentCredit,
		Amount: testutil.D(amount),
	})
	require.NoError(t, err)
}

func (m *Market) Balance(t testing.TB, userID snowflake.ID) decimal.Decimal {
	t.Helper()
	balance, err := m.Wallet.Balance(context.Background(), userID)
	require.NoError(t, err)
	return balance
}

func (m *Market) Order(t testing.TB, id snowflake.ID) *orderdomain.Order {
	t.Helper()
	o, err := m.Orders.FindByID(context.Background(), m.DB, id)
	require.NoError(t, err)
	require.NotNil(t, o)
	return o
}

func (m *Market) Payment(t testing.TB, orderID snowflake.ID) *orderdomain.Payment {
	t.Helper()
	p, err := m.Orders.FindPayment(context.Background(), m.DB, orderID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

// Seller returns the seller profile, or a zero profile when none exists yet.
func (m *Market) Seller(t testing.TB, sellerID snowflake.ID) sellerdomain.SellerProfile {
	t.Helper()
	p, err := m.Sellers.Get(context.Background(), m.DB, sellerID)
	require.NoError(t, err)
	if p == nil {
		return sellerdomain.SellerProfile{UserID: sellerID}
	}
	return *p
}

func (m *Market) CountCodes(t testing.TB, productID snowflake.ID, status inventorydomain.UnitStatus) int64 {
	t.Helper()
	var n int64
	require.NoError(t, m.DB.Table("product_codes").Where("product_id = ? AND status = ?", productID, status).Count(&n).Error)
	return n
}

func (m *Market) CountRows(t testing.TB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, m.DB.Table(table).Count(&n).Error)
	return n
}

// Checkout builds an orchestrator over the market's registry.
func (m *Market) Checkout() checkoutdomain.Service {
	return checkoutservice.NewService(checkoutservice.Params{
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

// Buy checks out the cart with the given method and returns the created order ids.
func (m *Market) Buy(t testing.TB, buyerID snowflake.ID, method orderdomain.PaymentMethod, items ...checkoutdomain.CartItem) []snowflake.ID {
	t.Helper()
	resp, err := m.Checkout().Checkout(context.Background(), checkoutdomain.Request{
		BuyerID: buyerID,
		Items:   items,
		Method:  method,
	})
	require.NoError(t, err)
	return resp.Orders()
}
