package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/digimart/internal/catalog/domain"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/fulfillment/domain"
	inventorydomain "github.com/smallbiznis/digimart/internal/inventory/domain"
	messagingdomain "github.com/smallbiznis/digimart/internal/messaging/domain"
	notificationdomain "github.com/smallbiznis/digimart/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/digimart/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	sellerdomain "github.com/smallbiznis/digimart/internal/seller/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	resumeBatchSize = 100
	expireBatchSize = 200
)

var errLostRace = errors.New("fulfillment_lost_race")

// expiringMethods settle through a hosted session that can lapse unpaid.
// Crypto transfers expire in reconciliation.
var expiringMethods = []orderdomain.PaymentMethod{
	orderdomain.PaymentMethodCardRedirect,
	orderdomain.PaymentMethodLocalQR,
}

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Orders        orderdomain.Repository
	Products      catalogdomain.Repository
	Sellers       sellerdomain.Repository
	Inventory     inventorydomain.Service
	Messaging     messagingdomain.Service
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
	messaging     messagingdomain.Service
	notifications notificationdomain.Service
	metrics       *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("fulfillment.service"),
		clock:         p.Clock,
		orders:        p.Orders,
		products:      p.Products,
		sellers:       p.Sellers,
		inventory:     p.Inventory,
		messaging:     p.Messaging,
		notifications: p.Notifications,
		metrics:       p.Metrics,
	}
}

type attempt struct {
	externalID string
	force      bool
	reviewer   snowflake.ID
	note       string
}

func (s *Service) FulfillOrder(ctx context.Context, orderID snowflake.ID, externalPaymentID string) (domain.Result, error) {
	return s.fulfill(ctx, orderID, attempt{externalID: strings.TrimSpace(externalPaymentID)})
}

// ForceComplete completes an order on admin approval. The fraud delay and
// manual-review flag are ignored; delivery only runs if it never did.
func (s *Service) ForceComplete(ctx context.Context, orderID snowflake.ID, opts domain.ForceOptions) (domain.Result, error) {
	if opts.ReviewerID == 0 {
		return domain.Result{}, domain.ErrNotForceable
	}
	return s.fulfill(ctx, orderID, attempt{
		force:    true,
		reviewer: opts.ReviewerID,
		note:     strings.TrimSpace(opts.Note),
	})
}

func (s *Service) FulfillGroup(ctx context.Context, groupID snowflake.ID, externalPaymentID string) ([]domain.Result, error) {
	orders, err := s.orders.ListByGroup(ctx, s.db, groupID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, orderdomain.ErrOrderNotFound
	}

	results := make([]domain.Result, 0, len(orders))
	var errs []error
	for _, o := range orders {
		res, err := s.FulfillOrder(ctx, o.ID, externalPaymentID)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", o.ID, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (s *Service) fulfill(ctx context.Context, orderID snowflake.ID, a attempt) (domain.Result, error) {
	var (
		result = domain.Result{OrderID: orderID}
		final  *orderdomain.Order
		items  []orderdomain.OrderItem
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.orders.FindForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current == nil {
			return orderdomain.ErrOrderNotFound
		}
		result.Status = current.Status

		if current.Status.IsFinal() {
			result.AlreadyFinal = true
			return nil
		}
		// Held orders wait for the review gate.
		if current.Status == orderdomain.StatusUnderReview && !a.force {
			result.AlreadyFinal = true
			return nil
		}
		switch current.PaymentStatus {
		case orderdomain.PaymentStatusFailed, orderdomain.PaymentStatusRefunded:
			return domain.ErrPaymentNotSettled
		case orderdomain.PaymentStatusPending:
			if a.force {
				return domain.ErrPaymentNotSettled
			}
		}

		now := s.clock.Now()
		paidAt := now
		if current.PaidAt != nil {
			paidAt = *current.PaidAt
		}
		if err := s.settlePayment(ctx, tx, orderID, a.externalID, paidAt, now); err != nil {
			return err
		}

		fields := map[string]any{
			"payment_status": orderdomain.PaymentStatusCompleted,
			"paid_at":        paidAt,
			"updated_at":     now,
		}

		if !a.force && current.DeliveryDeferred(now) {
			ok, err := s.orders.Transition(ctx, tx, orderID, orderdomain.Transition{
				From:   []orderdomain.Status{orderdomain.StatusPending, orderdomain.StatusProcessing},
				To:     orderdomain.StatusProcessing,
				Fields: fields,
			})
			if err != nil {
				return err
			}
			if !ok {
				return errLostRace
			}
			result.Status = orderdomain.StatusProcessing
			result.Deferred = true
			return nil
		}

		items, err = s.orders.ListItems(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !current.Fulfilled() {
			delivered, err := s.deliver(ctx, tx, current, items, now)
			if err != nil {
				return err
			}
			result.Delivered = delivered
			fields["fulfilled_at"] = now
		}

		from := []orderdomain.Status{orderdomain.StatusPending, orderdomain.StatusProcessing}
		target := orderdomain.StatusCompleted
		if current.RequiresManualReview && !a.force {
			target = orderdomain.StatusUnderReview
		}
		if target == orderdomain.StatusCompleted {
			fields["completed_at"] = now
		}
		if a.force {
			from = append(from, orderdomain.StatusUnderReview)
			fields["reviewed_by"] = a.reviewer
			fields["reviewed_at"] = now
			fields["review_note"] = a.note
		}

		ok, err := s.orders.Transition(ctx, tx, orderID, orderdomain.Transition{
			From:   from,
			To:     target,
			Fields: fields,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}

		final, err = s.orders.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		// Re-read so notifications see delivery flags.
		items, err = s.orders.ListItems(ctx, tx, orderID)
		if err != nil {
			return err
		}
		result.Status = target
		return nil
	})

	if errors.Is(err, errLostRace) {
		latest, ferr := s.orders.FindByID(ctx, s.db, orderID)
		if ferr != nil {
			return domain.Result{}, ferr
		}
		s.log.Info("fulfillment lost race, order already moved",
			zap.String("order_id", orderID.String()),
			zap.String("status", string(latest.Status)),
		)
		s.metrics.RecordFulfillment(ctx, "noop")
		return domain.Result{OrderID: orderID, Status: latest.Status, AlreadyFinal: true}, nil
	}
	if err != nil {
		s.metrics.RecordFulfillment(ctx, "failed")
		if !errors.Is(err, inventorydomain.ErrAllocationShortfall) {
			s.log.Warn("fulfillment failed",
				zap.String("order_id", orderID.String()),
				zap.Error(err),
			)
		}
		return domain.Result{}, err
	}

	switch {
	case result.AlreadyFinal:
		s.metrics.RecordFulfillment(ctx, "noop")
	case result.Deferred:
		s.metrics.RecordFulfillment(ctx, "deferred")
		s.log.Info("fulfillment deferred by delay window", zap.String("order_id", orderID.String()))
	default:
		s.metrics.RecordFulfillment(ctx, strings.ToLower(string(result.Status)))
		s.log.Info("order fulfilled",
			zap.String("order_id", orderID.String()),
			zap.String("status", string(result.Status)),
			zap.Int("delivered", result.Delivered),
			zap.Bool("forced", a.force),
		)
		if final != nil {
			s.notifications.OrderFulfilled(ctx, *final, items)
		}
	}
	return result, nil
}

func (s *Service) settlePayment(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, externalID string, paidAt, now time.Time) error {
	fields := map[string]any{
		"status":     orderdomain.PaymentStatusCompleted,
		"paid_at":    paidAt,
		"updated_at": now,
	}
	if externalID != "" {
		fields["external_id"] = externalID
	}
	_, err := s.orders.UpdatePayment(ctx, tx, orderID, []orderdomain.PaymentStatus{orderdomain.PaymentStatusPending}, fields)
	return err
}

// deliver allocates instant units, opens the seller conversation for manual
// items, bumps sold counters and credits the seller. It returns the number of
// instant units handed over.
func (s *Service) deliver(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, items []orderdomain.OrderItem, now time.Time) (int, error) {
	delivered := 0
	var manual []string
	for _, item := range items {
		if item.DeliveryType.IsInstant() {
			if !item.IsDelivered {
				_, err := s.inventory.Allocate(ctx, tx, inventorydomain.AllocationRequest{
					ProductID:   item.ProductID,
					OrderID:     order.ID,
					OrderItemID: item.ID,
					BuyerID:     order.BuyerID,
					Quantity:    item.Quantity,
				})
				if err != nil {
					if errors.Is(err, inventorydomain.ErrAllocationShortfall) {
						s.log.Error("inventory shortfall on paid order",
							zap.String("order_id", order.ID.String()),
							zap.String("product_id", item.ProductID.String()),
							zap.Int("quantity", item.Quantity),
						)
					}
					return 0, err
				}
				if err := s.orders.MarkItemDelivered(ctx, tx, item.ID, now); err != nil {
					return 0, err
				}
				delivered += item.Quantity
			}
		} else {
			manual = append(manual, fmt.Sprintf("%dx %s", item.Quantity, item.ProductName))
		}

		if err := s.products.IncrementSold(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return 0, err
		}
	}

	if len(manual) > 0 {
		body := fmt.Sprintf("Purchase received for order %s: %s. The seller will deliver your items in this conversation.",
			order.ID, strings.Join(manual, ", "))
		if _, err := s.messaging.PostSystemMessage(ctx, tx, messagingdomain.SystemMessage{
			BuyerID:  order.BuyerID,
			SellerID: order.SellerID,
			OrderID:  order.ID,
			Body:     body,
		}); err != nil {
			return 0, err
		}
	}

	if err := s.sellers.Credit(ctx, tx, order.SellerID, order.SellerEarnings, 1, now); err != nil {
		return 0, err
	}
	return delivered, nil
}

// ResumeDeferred re-runs fulfillment for paid orders whose delay window has
// elapsed. Failures are logged and the batch continues.
func (s *Service) ResumeDeferred(ctx context.Context, now time.Time) (int, error) {
	due, err := s.orders.ListDeferredDue(ctx, s.db, now, resumeBatchSize)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, o := range due {
		if err := ctx.Err(); err != nil {
			return resumed, err
		}
		res, err := s.FulfillOrder(ctx, o.ID, "")
		if err != nil {
			s.log.Warn("resume deferred fulfillment failed",
				zap.String("order_id", o.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if !res.AlreadyFinal && !res.Deferred {
			resumed++
		}
	}
	return resumed, nil
}

// ExpireOrder cancels an unpaid PENDING order. It reports false when the
// order already moved on.
func (s *Service) ExpireOrder(ctx context.Context, orderID snowflake.ID, reason string) (bool, error) {
	var cancelled *orderdomain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.orders.FindForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current == nil {
			return orderdomain.ErrOrderNotFound
		}
		if current.Status != orderdomain.StatusPending || current.PaymentStatus != orderdomain.PaymentStatusPending {
			return nil
		}

		now := s.clock.Now()
		ok, err := s.orders.Transition(ctx, tx, orderID, orderdomain.Transition{
			From: []orderdomain.Status{orderdomain.StatusPending},
			To:   orderdomain.StatusCancelled,
			Fields: map[string]any{
				"payment_status": orderdomain.PaymentStatusFailed,
				"cancelled_at":   now,
				"cancel_reason":  reason,
				"updated_at":     now,
			},
		})
		if err != nil || !ok {
			return err
		}
		if _, err := s.orders.UpdatePayment(ctx, tx, orderID, []orderdomain.PaymentStatus{orderdomain.PaymentStatusPending}, map[string]any{
			"status":     orderdomain.PaymentStatusFailed,
			"updated_at": now,
		}); err != nil {
			return err
		}
		cancelled, err = s.orders.FindByID(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return false, err
	}
	if cancelled == nil {
		return false, nil
	}
	s.log.Info("pending order expired",
		zap.String("order_id", orderID.String()),
		zap.String("reason", reason),
	)
	s.notifications.OrderCancelled(ctx, *cancelled, reason, decimal.Zero)
	return true, nil
}

func (s *Service) ExpireGroup(ctx context.Context, groupID snowflake.ID, reason string) (int, error) {
	orders, err := s.orders.ListByGroup(ctx, s.db, groupID)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, o := range orders {
		ok, err := s.ExpireOrder(ctx, o.ID, reason)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// ExpireCheckouts cancels card and QR orders whose hosted session lapsed.
func (s *Service) ExpireCheckouts(ctx context.Context) (int, error) {
	due, err := s.orders.ListExpiredPending(ctx, s.db, expiringMethods, s.clock.Now(), expireBatchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, o := range due {
		ok, err := s.ExpireOrder(ctx, o.ID, domain.CancelReasonPaymentExpired)
		if err != nil {
			s.log.Warn("expire checkout failed", zap.String("order_id", o.ID.String()), zap.Error(err))
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}
