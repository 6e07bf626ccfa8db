package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/digimart/internal/catalog/domain"
	"github.com/smallbiznis/digimart/internal/checkout/domain"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	frauddomain "github.com/smallbiznis/digimart/internal/fraud/domain"
	fulfillmentdomain "github.com/smallbiznis/digimart/internal/fulfillment/domain"
	inventorydomain "github.com/smallbiznis/digimart/internal/inventory/domain"
	"github.com/smallbiznis/digimart/internal/memo"
	obsmetrics "github.com/smallbiznis/digimart/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	"github.com/smallbiznis/digimart/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Platform    config.PlatformSource
	Products    catalogdomain.Repository
	Orders      orderdomain.Repository
	Inventory   inventorydomain.Service
	Fraud       frauddomain.Service
	Adapters    *adapters.Registry
	Fulfillment fulfillmentdomain.Service
	Memo        *memo.Issuer
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	platform    config.PlatformSource
	products    catalogdomain.Repository
	orders      orderdomain.Repository
	inventory   inventorydomain.Service
	fraud       frauddomain.Service
	adapters    *adapters.Registry
	fulfillment fulfillmentdomain.Service
	memo        *memo.Issuer
	metrics     *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("checkout.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		platform:    p.Platform,
		products:    p.Products,
		orders:      p.Orders,
		inventory:   p.Inventory,
		fraud:       p.Fraud,
		adapters:    p.Adapters,
		fulfillment: p.Fulfillment,
		memo:        p.Memo,
		metrics:     p.Metrics,
	}
}

type line struct {
	product  catalogdomain.Product
	quantity int
}

type sellerGroup struct {
	sellerID snowflake.ID
	lines    []line
	quote    domain.Quote
}

// Checkout validates the cart, creates one PENDING order per seller and hands
// the grand total to the adapter of the chosen method.
func (s *Service) Checkout(ctx context.Context, req domain.Request) (domain.Response, error) {
	if req.BuyerID == 0 {
		return nil, domain.ErrInvalidBuyer
	}
	if !req.Method.Valid() {
		return nil, orderdomain.ErrInvalidPaymentMethod
	}
	quantities, productIDs, err := mergeItems(req.Items)
	if err != nil {
		return nil, err
	}

	lines, err := s.loadLines(ctx, req.BuyerID, productIDs, quantities)
	if err != nil {
		return nil, err
	}
	if err := s.checkStock(ctx, lines); err != nil {
		return nil, err
	}

	policy := s.platform.Get()
	groups := groupBySeller(lines, policy.Fees)
	grandTotal := decimal.Zero
	itemCount := 0
	for _, g := range groups {
		grandTotal = grandTotal.Add(g.quote.Total)
		for _, l := range g.lines {
			itemCount += l.quantity
		}
	}

	assessment, err := s.fraud.Assess(ctx, frauddomain.Input{
		BuyerID:   req.BuyerID,
		Total:     grandTotal,
		Method:    req.Method,
		ItemCount: itemCount,
	})
	if err != nil {
		return nil, err
	}

	adapter, err := s.adapters.Adapter(req.Method)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	groupID := s.genID.Generate()

	var memoToken string
	if req.Method == orderdomain.PaymentMethodCryptoTransfer {
		memoToken, err = s.memo.Issue(ctx)
		if err != nil {
			return nil, err
		}
	}

	var expiresAt *time.Time
	switch req.Method {
	case orderdomain.PaymentMethodCryptoTransfer:
		t := now.Add(policy.Deposits.Expiry())
		expiresAt = &t
	case orderdomain.PaymentMethodCardRedirect, orderdomain.PaymentMethodLocalQR:
		t := now.Add(policy.Checkout.Expiry())
		expiresAt = &t
	}

	var scheduledAt *time.Time
	if assessment.ShouldDelay && assessment.DelayMinutes > 0 {
		t := now.Add(time.Duration(assessment.DelayMinutes) * time.Minute)
		scheduledAt = &t
	}

	orderIDs, err := s.persist(ctx, persistInput{
		buyerID:     req.BuyerID,
		groupID:     groupID,
		method:      req.Method,
		groups:      groups,
		assessment:  assessment,
		scheduledAt: scheduledAt,
		expiresAt:   expiresAt,
		memoToken:   memoToken,
		now:         now,
	})
	if err != nil {
		return nil, err
	}

	log := s.log.With(
		zap.String("checkout_group_id", groupID.String()),
		zap.String("buyer_id", req.BuyerID.String()),
		zap.String("method", string(req.Method)),
	)
	log.Info("checkout orders created",
		zap.Int("orders", len(orderIDs)),
		zap.String("total", grandTotal.StringFixed(2)),
		zap.Bool("high_value", assessment.IsHighValue),
		zap.Bool("manual_review", assessment.RequiresManualReview),
	)

	intent := paymentdomain.Intent{
		CheckoutGroupID: groupID,
		BuyerID:         req.BuyerID,
		OrderIDs:        orderIDs,
		Amount:          grandTotal,
		Description:     describe(groups),
		MemoToken:       memoToken,
	}
	if expiresAt != nil {
		intent.ExpiresAt = *expiresAt
	}

	initiation, err := adapter.Initiate(ctx, intent)
	if err != nil {
		if req.Method.SettlesSynchronously() {
			if derr := s.orders.DeleteOrders(ctx, s.db, orderIDs); derr != nil {
				log.Error("rollback of unpaid checkout failed", zap.Error(derr))
				return nil, errors.Join(err, derr)
			}
			log.Info("wallet checkout rejected, orders removed", zap.Error(err))
			return nil, err
		}
		log.Warn("payment provider failed, settling in sandbox mode", zap.Error(err))
		initiation, err = s.adapters.Fallback(req.Method).Initiate(ctx, intent)
		if err != nil {
			return nil, err
		}
	}

	if err := s.recordInitiation(ctx, groupID, initiation, now); err != nil {
		return nil, err
	}
	s.metrics.RecordCheckoutOrders(ctx, string(req.Method), len(orderIDs), initiation.Sandbox)

	if initiation.Settled {
		for _, id := range orderIDs {
			if _, err := s.fulfillment.FulfillOrder(ctx, id, initiation.ExternalID); err != nil {
				log.Error("fulfillment after immediate settlement failed",
					zap.String("order_id", id.String()),
					zap.Error(err),
				)
				return nil, err
			}
		}
	}

	return buildResponse(initiation, orderIDs)
}

func mergeItems(items []domain.CartItem) (map[snowflake.ID]int, []snowflake.ID, error) {
	if len(items) == 0 {
		return nil, nil, domain.ErrEmptyCart
	}
	quantities := make(map[snowflake.ID]int, len(items))
	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		if item.ProductID == 0 {
			return nil, nil, domain.ErrProductUnavailable
		}
		if item.Quantity <= 0 {
			return nil, nil, domain.ErrInvalidQuantity
		}
		if _, seen := quantities[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	return quantities, ids, nil
}

func (s *Service) loadLines(ctx context.Context, buyerID snowflake.ID, ids []snowflake.ID, quantities map[snowflake.ID]int) ([]line, error) {
	products, err := s.products.FindByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]catalogdomain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	lines := make([]line, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok || !p.Purchasable() {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductUnavailable, id)
		}
		if p.SellerID == buyerID {
			return nil, domain.ErrOwnProduct
		}
		lines = append(lines, line{product: p, quantity: quantities[id]})
	}
	return lines, nil
}

// checkStock rejects the cart before any order exists when an instant item
// cannot be covered by the code and account pools.
func (s *Service) checkStock(ctx context.Context, lines []line) error {
	for _, l := range lines {
		if !l.product.DeliveryType.IsInstant() {
			continue
		}
		available, err := s.inventory.Available(ctx, l.product.ID)
		if err != nil {
			return err
		}
		if available < int64(l.quantity) {
			return &inventorydomain.InsufficientStockError{
				ProductID: l.product.ID,
				Name:      l.product.Name,
				Requested: l.quantity,
				Available: available,
			}
		}
	}
	return nil
}

func groupBySeller(lines []line, fees config.FeeConfig) []sellerGroup {
	index := map[snowflake.ID]int{}
	var groups []sellerGroup
	for _, l := range lines {
		i, ok := index[l.product.SellerID]
		if !ok {
			i = len(groups)
			index[l.product.SellerID] = i
			groups = append(groups, sellerGroup{sellerID: l.product.SellerID})
		}
		groups[i].lines = append(groups[i].lines, l)
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].sellerID < groups[b].sellerID })

	for i := range groups {
		subtotal := decimal.Zero
		for _, l := range groups[i].lines {
			subtotal = subtotal.Add(lineTotal(l))
		}
		groups[i].quote = QuoteFor(fees, groups[i].sellerID, subtotal)
	}
	return groups
}

// QuoteFor computes the fee breakdown of a seller subtotal.
func QuoteFor(fees config.FeeConfig, sellerID snowflake.ID, subtotal decimal.Decimal) domain.Quote {
	serviceFee := fees.Fixed().Add(subtotal.Mul(fees.Percent()).Div(hundred)).Round(2)
	rate := fees.Commission()
	commission := subtotal.Mul(rate).Round(2)
	return domain.Quote{
		SellerID:         sellerID,
		Subtotal:         subtotal,
		ServiceFee:       serviceFee,
		Total:            subtotal.Add(serviceFee),
		CommissionRate:   rate,
		CommissionAmount: commission,
		SellerEarnings:   subtotal.Sub(commission),
	}
}

func lineTotal(l line) decimal.Decimal {
	return l.product.Price.Mul(decimal.NewFromInt(int64(l.quantity))).Round(2)
}

type persistInput struct {
	buyerID     snowflake.ID
	groupID     snowflake.ID
	method      orderdomain.PaymentMethod
	groups      []sellerGroup
	assessment  frauddomain.Assessment
	scheduledAt *time.Time
	expiresAt   *time.Time
	memoToken   string
	now         time.Time
}

func (s *Service) persist(ctx context.Context, in persistInput) ([]snowflake.ID, error) {
	orderIDs := make([]snowflake.ID, 0, len(in.groups))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, g := range in.groups {
			q := g.quote
			order := orderdomain.Order{
				ID:                   s.genID.Generate(),
				CheckoutGroupID:      in.groupID,
				BuyerID:              in.buyerID,
				SellerID:             g.sellerID,
				Subtotal:             q.Subtotal,
				ServiceFee:           q.ServiceFee,
				Total:                q.Total,
				CommissionRate:       q.CommissionRate,
				CommissionAmount:     q.CommissionAmount,
				SellerEarnings:       q.SellerEarnings,
				PaymentMethod:        in.method,
				PaymentStatus:        orderdomain.PaymentStatusPending,
				Status:               orderdomain.StatusPending,
				IsHighValue:          in.assessment.IsHighValue,
				RequiresManualReview: in.assessment.RequiresManualReview,
				DeliveryScheduledAt:  in.scheduledAt,
				ExpiresAt:            in.expiresAt,
				RefundedAmount:       decimal.Zero,
				CreatedAt:            in.now,
				UpdatedAt:            in.now,
			}
			if err := s.orders.Insert(ctx, tx, &order); err != nil {
				return err
			}

			items := make([]orderdomain.OrderItem, 0, len(g.lines))
			for _, l := range g.lines {
				items = append(items, orderdomain.OrderItem{
					ID:           s.genID.Generate(),
					OrderID:      order.ID,
					ProductID:    l.product.ID,
					ProductName:  l.product.Name,
					ProductType:  l.product.Type,
					DeliveryType: l.product.DeliveryType,
					UnitPrice:    l.product.Price,
					Quantity:     l.quantity,
					Total:        lineTotal(l),
					DurationDays: l.product.DurationDays,
					CreatedAt:    in.now,
				})
			}
			if err := s.orders.InsertItems(ctx, tx, items); err != nil {
				return err
			}

			payment := orderdomain.Payment{
				ID:              s.genID.Generate(),
				OrderID:         order.ID,
				CheckoutGroupID: in.groupID,
				Method:          in.method,
				Amount:          q.Total,
				Status:          orderdomain.PaymentStatusPending,
				CreatedAt:       in.now,
				UpdatedAt:       in.now,
			}
			if in.memoToken != "" {
				token := in.memoToken
				payment.MemoToken = &token
			}
			if err := s.orders.InsertPayment(ctx, tx, &payment); err != nil {
				return err
			}
			orderIDs = append(orderIDs, order.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orderIDs, nil
}

// recordInitiation stores the provider reference on every payment of the
// checkout. Settled payments are marked collected so a failed fulfillment
// still leaves a refundable trail.
func (s *Service) recordInitiation(ctx context.Context, groupID snowflake.ID, init paymentdomain.Initiation, now time.Time) error {
	details, err := orderdomain.EncodeDetails(init.Details)
	if err != nil {
		return err
	}
	fields := map[string]any{
		"details":    details,
		"sandbox":    init.Sandbox,
		"updated_at": now,
	}
	if init.ExternalID != "" {
		fields["external_id"] = init.ExternalID
	}
	if !init.Settled {
		return s.orders.UpdateGroupPaymentDetails(ctx, s.db, groupID, fields)
	}

	fields["status"] = orderdomain.PaymentStatusCompleted
	fields["paid_at"] = now
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orders.UpdateGroupPaymentDetails(ctx, tx, groupID, fields); err != nil {
			return err
		}
		return s.orders.UpdateGroupOrders(ctx, tx, groupID, map[string]any{
			"payment_status": orderdomain.PaymentStatusCompleted,
			"paid_at":        now,
			"expires_at":     nil,
			"updated_at":     now,
		})
	})
}

func buildResponse(init paymentdomain.Initiation, orderIDs []snowflake.ID) (domain.Response, error) {
	switch d := init.Details.(type) {
	case orderdomain.CardRedirectDetails:
		return domain.RedirectResponse{URL: d.URL, OrderIDs: orderIDs}, nil
	case orderdomain.LocalQRDetails:
		return domain.QRResponse{
			Reference: d.Reference,
			QRPayload: d.Payload,
			QRImage:   d.ImagePNG,
			ExpiresAt: d.ExpiresAt,
			OrderIDs:  orderIDs,
		}, nil
	case orderdomain.CryptoTransferDetails:
		return domain.CryptoResponse{
			Address:   d.Address,
			Coin:      d.Coin,
			Network:   d.Network,
			MemoToken: d.MemoToken,
			Amount:    d.Amount,
			ExpiresAt: d.ExpiresAt,
			OrderIDs:  orderIDs,
		}, nil
	case orderdomain.WalletDetails:
		return domain.WalletResponse{OrderIDs: orderIDs, Balance: d.BalanceAfter}, nil
	case orderdomain.SandboxDetails:
		return domain.CompletedResponse{OrderIDs: orderIDs, Sandbox: true}, nil
	case nil:
		if init.Settled {
			return domain.CompletedResponse{OrderIDs: orderIDs, Sandbox: init.Sandbox}, nil
		}
	}
	return nil, fmt.Errorf("%w: %T", orderdomain.ErrInvalidDetails, init.Details)
}

func describe(groups []sellerGroup) string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		for _, l := range g.lines {
			names = append(names, fmt.Sprintf("%dx %s", l.quantity, l.product.Name))
		}
	}
	return strings.Join(names, ", ")
}
