package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/digimart/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/digimart/internal/catalog/domain"
	"github.com/smallbiznis/digimart/internal/clock"
	fulfillmentdomain "github.com/smallbiznis/digimart/internal/fulfillment/domain"
	inventorydomain "github.com/smallbiznis/digimart/internal/inventory/domain"
	notificationdomain "github.com/smallbiznis/digimart/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/digimart/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	"github.com/smallbiznis/digimart/internal/review/domain"
	sellerdomain "github.com/smallbiznis/digimart/internal/seller/domain"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Orders        orderdomain.Repository
	Products      catalogdomain.Repository
	Sellers       sellerdomain.Repository
	Inventory     inventorydomain.Service
	Wallet        walletdomain.Service
	Fulfillment   fulfillmentdomain.Service
	Audit         auditdomain.Service
	Notifications notificationdomain.Service
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	orders        orderdomain.Repository
	products      catalogdomain.Repository
	sellers       sellerdomain.Repository
	inventory     inventorydomain.Service
	wallet        walletdomain.Service
	fulfillment   fulfillmentdomain.Service
	audit         auditdomain.Service
	notifications notificationdomain.Service
	metrics       *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("review.service"),
		clock:         p.Clock,
		orders:        p.Orders,
		products:      p.Products,
		sellers:       p.Sellers,
		inventory:     p.Inventory,
		wallet:        p.Wallet,
		fulfillment:   p.Fulfillment,
		audit:         p.Audit,
		notifications: p.Notifications,
		metrics:       p.Metrics,
	}
}

func (s *Service) Review(ctx context.Context, req domain.Request) (domain.Decision, error) {
	switch req.Action {
	case domain.ActionApprove:
		return s.Approve(ctx, req.AdminID, req.OrderID, req.Reason)
	case domain.ActionReject:
		return s.Reject(ctx, req.AdminID, req.OrderID, req.Reason)
	default:
		return domain.Decision{}, domain.ErrInvalidAction
	}
}

// reviewable reports whether an admin may decide on the order. Pending and
// processing orders qualify only when fraud flagged them for review.
func reviewable(o *orderdomain.Order) bool {
	switch o.Status {
	case orderdomain.StatusUnderReview:
		return true
	case orderdomain.StatusPending, orderdomain.StatusProcessing:
		return o.RequiresManualReview
	default:
		return false
	}
}

// Approve releases a held order. Delivery already staged before the hold is
// kept; otherwise fulfillment runs now, ignoring the delay window.
func (s *Service) Approve(ctx context.Context, adminID, orderID snowflake.ID, reason string) (domain.Decision, error) {
	if adminID == 0 {
		return domain.Decision{}, domain.ErrInvalidAdmin
	}
	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return domain.Decision{}, err
	}
	if order == nil {
		return domain.Decision{}, orderdomain.ErrOrderNotFound
	}
	if !reviewable(order) {
		return domain.Decision{}, domain.ErrNotUnderReview
	}

	res, err := s.fulfillment.ForceComplete(ctx, orderID, fulfillmentdomain.ForceOptions{
		ReviewerID: adminID,
		Note:       reason,
	})
	if err != nil {
		return domain.Decision{}, err
	}
	if res.AlreadyFinal {
		return domain.Decision{}, domain.ErrNotUnderReview
	}

	if err := s.audit.AuditLog(ctx, auditdomain.Entry{
		ActorType:  string(auditdomain.ActorTypeAdmin),
		ActorID:    adminID.String(),
		Action:     auditdomain.ActionOrderReviewApprove,
		TargetType: "order",
		TargetID:   orderID.String(),
		Metadata: map[string]any{
			"reason":          strings.TrimSpace(reason),
			"total":           order.Total.StringFixed(2),
			"seller_earnings": order.SellerEarnings.StringFixed(2),
			"prestaged":       order.Fulfilled(),
		},
	}); err != nil {
		s.log.Warn("audit review approve", zap.String("order_id", orderID.String()), zap.Error(err))
	}

	s.metrics.RecordReviewDecision(ctx, string(domain.ActionApprove))
	s.log.Info("order approved",
		zap.String("order_id", orderID.String()),
		zap.String("admin_id", adminID.String()),
		zap.Bool("prestaged", order.Fulfilled()),
	)
	return domain.Decision{
		OrderID:        orderID,
		Action:         domain.ActionApprove,
		Status:         res.Status,
		Credited:       decimal.Zero,
		SellerReversed: decimal.Zero,
	}, nil
}

// Reject cancels a held order and unwinds whatever already moved: the buyer
// gets the collected total back, staged seller earnings are reversed and the
// allocated units are suspended.
func (s *Service) Reject(ctx context.Context, adminID, orderID snowflake.ID, reason string) (domain.Decision, error) {
	if adminID == 0 {
		return domain.Decision{}, domain.ErrInvalidAdmin
	}
	reason = strings.TrimSpace(reason)
	decision := domain.Decision{
		OrderID:        orderID,
		Action:         domain.ActionReject,
		Status:         orderdomain.StatusCancelled,
		Credited:       decimal.Zero,
		SellerReversed: decimal.Zero,
	}

	var cancelled *orderdomain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.orders.FindForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current == nil {
			return orderdomain.ErrOrderNotFound
		}
		if !reviewable(current) {
			return domain.ErrNotUnderReview
		}

		now := s.clock.Now()
		paid := current.PaymentStatus == orderdomain.PaymentStatusCompleted
		paymentStatus := orderdomain.PaymentStatusFailed
		if paid {
			paymentStatus = orderdomain.PaymentStatusRefunded
		}

		ok, err := s.orders.Transition(ctx, tx, orderID, orderdomain.Transition{
			From: []orderdomain.Status{current.Status},
			To:   orderdomain.StatusCancelled,
			Fields: map[string]any{
				"payment_status": paymentStatus,
				"cancelled_at":   now,
				"cancel_reason":  domain.CancelReasonRejected,
				"reviewed_by":    adminID,
				"reviewed_at":    now,
				"review_note":    reason,
				"updated_at":     now,
			},
		})
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotUnderReview
		}
		if _, err := s.orders.UpdatePayment(ctx, tx, orderID,
			[]orderdomain.PaymentStatus{orderdomain.PaymentStatusPending, orderdomain.PaymentStatusCompleted},
			map[string]any{"status": paymentStatus, "updated_at": now},
		); err != nil {
			return err
		}

		if paid {
			id := current.ID
			if _, err := s.wallet.CreditTx(ctx, tx, walletdomain.EntryRequest{
				UserID:      current.BuyerID,
				Type:        walletdomain.TransactionCancellationCredit,
				Amount:      current.Total,
				OrderID:     &id,
				Description: fmt.Sprintf("Order %s rejected on review", current.ID),
			}); err != nil {
				return err
			}
			decision.Credited = current.Total
		}

		if current.Fulfilled() {
			if err := s.sellers.Reverse(ctx, tx, current.SellerID, current.SellerEarnings, 1, now); err != nil {
				return err
			}
			decision.SellerReversed = current.SellerEarnings

			items, err := s.orders.ListItems(ctx, tx, orderID)
			if err != nil {
				return err
			}
			for _, item := range items {
				if err := s.products.DecrementSold(ctx, tx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}

		suspended, err := s.inventory.SuspendForOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		decision.Suspended = suspended

		if err := s.audit.AuditLogTx(ctx, tx, auditdomain.Entry{
			ActorType:  string(auditdomain.ActorTypeAdmin),
			ActorID:    adminID.String(),
			Action:     auditdomain.ActionOrderReviewReject,
			TargetType: "order",
			TargetID:   orderID.String(),
			Metadata: map[string]any{
				"reason":          reason,
				"total":           current.Total.StringFixed(2),
				"credited":        decision.Credited.StringFixed(2),
				"seller_reversed": decision.SellerReversed.StringFixed(2),
				"suspended_units": suspended,
			},
		}); err != nil {
			return err
		}

		cancelled, err = s.orders.FindByID(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return domain.Decision{}, err
	}

	s.metrics.RecordReviewDecision(ctx, string(domain.ActionReject))
	s.log.Info("order rejected",
		zap.String("order_id", orderID.String()),
		zap.String("admin_id", adminID.String()),
		zap.String("credited", decision.Credited.String()),
		zap.String("seller_reversed", decision.SellerReversed.String()),
		zap.Int64("suspended_units", decision.Suspended),
	)
	if cancelled != nil {
		s.notifications.OrderCancelled(ctx, *cancelled, domain.CancelReasonRejected, decision.Credited)
	}
	return decision, nil
}
