package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	notificationdomain "github.com/smallbiznis/digimart/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/digimart/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	"github.com/smallbiznis/digimart/internal/refund/domain"
	sellerdomain "github.com/smallbiznis/digimart/internal/seller/domain"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
	pkgdb "github.com/smallbiznis/digimart/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Platform      config.PlatformSource
	Repo          domain.Repository
	Orders        orderdomain.Repository
	Sellers       sellerdomain.Repository
	Wallet        walletdomain.Service
	Notifications notificationdomain.Service
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	platform      config.PlatformSource
	repo          domain.Repository
	orders        orderdomain.Repository
	sellers       sellerdomain.Repository
	wallet        walletdomain.Service
	notifications notificationdomain.Service
	metrics       *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("refund.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		platform:      p.Platform,
		repo:          p.Repo,
		orders:        p.Orders,
		sellers:       p.Sellers,
		wallet:        p.Wallet,
		notifications: p.Notifications,
		metrics:       p.Metrics,
	}
}

func (s *Service) Quote(ctx context.Context, buyerID, orderID snowflake.ID) (domain.RefundRequest, error) {
	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return domain.RefundRequest{}, err
	}
	return s.quote(ctx, s.db, buyerID, order)
}

// RequestRefund prorates a completed subscription order and settles the
// refund in one transaction: buyer credit, seller reversal and the order
// moving to REFUNDED.
func (s *Service) RequestRefund(ctx context.Context, req domain.Request) (domain.RefundRequest, error) {
	var (
		out   domain.RefundRequest
		order *orderdomain.Order
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.orders.FindForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		quote, err := s.quote(ctx, tx, req.BuyerID, order)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		quote.ID = s.genID.Generate()
		quote.Status = domain.StatusProcessed
		quote.Reason = req.Reason
		quote.ProcessedAt = &now
		quote.CreatedAt = now
		if err := s.repo.Insert(ctx, tx, &quote); err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return domain.ErrRefundAlreadyRequested
			}
			return err
		}

		orderID, refundID := order.ID, quote.ID
		if _, err := s.wallet.CreditTx(ctx, tx, walletdomain.EntryRequest{
			UserID:      order.BuyerID,
			Type:        walletdomain.TransactionRefundCredit,
			Amount:      quote.RefundAmount,
			OrderID:     &orderID,
			RefundID:    &refundID,
			Description: fmt.Sprintf("Refund for order %s", order.ID),
		}); err != nil {
			return err
		}
		if err := s.sellers.Reverse(ctx, tx, order.SellerID, quote.SellerDebit, 1, now); err != nil {
			return err
		}

		ok, err := s.orders.Transition(ctx, tx, order.ID, orderdomain.Transition{
			From: []orderdomain.Status{orderdomain.StatusCompleted},
			To:   orderdomain.StatusRefunded,
			Fields: map[string]any{
				"payment_status":  orderdomain.PaymentStatusRefunded,
				"refunded_amount": quote.RefundAmount,
				"updated_at":      now,
			},
		})
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOrderNotCompleted
		}
		if _, err := s.orders.UpdatePayment(ctx, tx, order.ID,
			[]orderdomain.PaymentStatus{orderdomain.PaymentStatusCompleted},
			map[string]any{"status": orderdomain.PaymentStatusRefunded, "updated_at": now},
		); err != nil {
			return err
		}

		out = quote
		return nil
	})
	if err != nil {
		return domain.RefundRequest{}, err
	}

	s.log.Info("refund processed",
		zap.String("order_id", out.OrderID.String()),
		zap.String("refund_id", out.ID.String()),
		zap.String("type", string(out.Type)),
		zap.String("amount", out.RefundAmount.String()),
		zap.String("seller_debit", out.SellerDebit.String()),
	)
	s.metrics.RecordRefund(ctx, string(out.Type))
	s.notifications.RefundProcessed(ctx, *order, out.RefundAmount)
	return out, nil
}

// quote checks eligibility and prorates every item of the order.
func (s *Service) quote(ctx context.Context, db *gorm.DB, buyerID snowflake.ID, order *orderdomain.Order) (domain.RefundRequest, error) {
	if order == nil || order.BuyerID != buyerID {
		return domain.RefundRequest{}, orderdomain.ErrOrderNotFound
	}
	existing, err := s.repo.FindActiveByOrder(ctx, db, order.ID)
	if err != nil {
		return domain.RefundRequest{}, err
	}
	if existing != nil {
		return domain.RefundRequest{}, domain.ErrRefundAlreadyRequested
	}
	if order.Status != orderdomain.StatusCompleted {
		return domain.RefundRequest{}, domain.ErrOrderNotCompleted
	}

	now := s.clock.Now()
	window := s.platform.Get().Refund.WindowDays
	if now.After(order.CreatedAt.AddDate(0, 0, window)) {
		return domain.RefundRequest{}, domain.ErrRefundWindowExpired
	}

	items, err := s.orders.ListItems(ctx, db, order.ID)
	if err != nil {
		return domain.RefundRequest{}, err
	}
	if len(items) == 0 {
		return domain.RefundRequest{}, domain.ErrNotRefundable
	}

	out := domain.RefundRequest{
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		SellerID:       order.SellerID,
		Type:           domain.TypeFull,
		OriginalAmount: decimal.Zero,
		RefundAmount:   decimal.Zero,
	}
	// only time-boxed items prorate; other lines of a mixed order are kept
	eligible := 0
	for _, item := range items {
		delivered := item.DeliveredAt
		if delivered == nil {
			delivered = order.FulfilledAt
		}
		if !item.ProductType.IsTimeBoxed() || item.DurationDays <= 0 || delivered == nil {
			continue
		}
		p := domain.Prorate(item.DurationDays, *delivered, now, item.Total)
		if p.Type != domain.TypeFull {
			out.Type = domain.TypePartialProrated
		}
		if eligible == 0 {
			out.UsedDays, out.RemainingDays, out.TotalDays = p.UsedDays, p.RemainingDays, p.TotalDays
		}
		eligible++
		out.OriginalAmount = out.OriginalAmount.Add(item.Total)
		if p.Eligible {
			out.RefundAmount = out.RefundAmount.Add(p.Amount)
		}
	}
	if eligible == 0 {
		return domain.RefundRequest{}, domain.ErrNotRefundable
	}
	if !out.RefundAmount.IsPositive() {
		return domain.RefundRequest{}, domain.ErrNothingToRefund
	}

	keep := decimal.NewFromInt(1).Sub(order.CommissionRate)
	out.SellerDebit = out.RefundAmount.Mul(keep).Round(2)
	return out, nil
}
