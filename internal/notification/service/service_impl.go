package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/digimart/internal/catalog/domain"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/notification/domain"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	"github.com/smallbiznis/digimart/internal/providers/email"
	"github.com/smallbiznis/digimart/internal/providers/pdf"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	emailTimeout     = 30 * time.Second
	defaultListLimit = 50
	maxListLimit     = 200
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Email email.Provider
	PDF   pdf.Provider
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	email email.Provider
	pdf   pdf.Provider

	wg sync.WaitGroup
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("notification.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		email: p.Email,
		pdf:   p.PDF,
	}
}

// OrderFulfilled notifies the buyer and seller once fulfillment committed.
// Orders held for review only tell the buyer that delivery is pending.
func (s *Service) OrderFulfilled(ctx context.Context, order orderdomain.Order, items []orderdomain.OrderItem) {
	orderRef := order.ID.String()
	payload := map[string]any{
		"order_id": orderRef,
		"total":    order.Total.StringFixed(2),
		"status":   string(order.Status),
	}
	manual := hasManualItems(items)

	if order.Status == orderdomain.StatusUnderReview {
		s.insert(ctx, notification(s, order.BuyerID, domain.KindOrderUnderReview,
			"Order under review",
			fmt.Sprintf("Payment for order %s was received and is being reviewed.", orderRef),
			payload))
		s.sendEmail(order.BuyerID, "order_under_review", map[string]any{"order_id": orderRef}, nil)
		return
	}

	sellerPayload := map[string]any{
		"order_id": orderRef,
		"earnings": order.SellerEarnings.StringFixed(2),
		"manual":   manual,
	}
	s.insert(ctx,
		notification(s, order.BuyerID, domain.KindOrderCompleted,
			"Order completed",
			fmt.Sprintf("Order %s is complete.", orderRef),
			payload),
		notification(s, order.SellerID, domain.KindSaleCompleted,
			"New sale",
			fmt.Sprintf("Order %s was paid. %s added to your balance.", orderRef, order.SellerEarnings.StringFixed(2)),
			sellerPayload),
	)

	receipt := receiptFor(order, items, s.clock.Now())
	s.sendEmail(order.BuyerID, "order_completed", map[string]any{
		"order_id": orderRef,
		"total":    order.Total.StringFixed(2),
		"manual":   manual,
	}, &receipt)
	s.sendEmail(order.SellerID, "sale_completed", sellerPayload, nil)
}

func (s *Service) OrderCancelled(ctx context.Context, order orderdomain.Order, reason string, credited decimal.Decimal) {
	orderRef := order.ID.String()
	data := map[string]any{
		"order_id": orderRef,
		"reason":   reason,
	}
	body := fmt.Sprintf("Order %s was cancelled: %s.", orderRef, reason)
	if credited.IsPositive() {
		data["credited"] = credited.StringFixed(2)
		body += fmt.Sprintf(" %s was returned to your wallet.", credited.StringFixed(2))
	}
	s.insert(ctx, notification(s, order.BuyerID, domain.KindOrderCancelled, "Order cancelled", body, data))
	s.sendEmail(order.BuyerID, "order_cancelled", data, nil)
}

func (s *Service) RefundProcessed(ctx context.Context, order orderdomain.Order, amount decimal.Decimal) {
	data := map[string]any{
		"order_id": order.ID.String(),
		"amount":   amount.StringFixed(2),
	}
	s.insert(ctx, notification(s, order.BuyerID, domain.KindRefundProcessed,
		"Refund processed",
		fmt.Sprintf("%s was refunded to your wallet for order %s.", amount.StringFixed(2), order.ID),
		data))
	s.sendEmail(order.BuyerID, "refund_processed", data, nil)
}

func (s *Service) DepositCompleted(ctx context.Context, userID, depositID snowflake.ID, amount decimal.Decimal) {
	s.insert(ctx, notification(s, userID, domain.KindDepositCompleted,
		"Deposit received",
		fmt.Sprintf("%s was added to your wallet.", amount.StringFixed(2)),
		map[string]any{"deposit_id": depositID.String(), "amount": amount.StringFixed(2)}))
}

func (s *Service) List(ctx context.Context, userID snowflake.ID, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListByUser(ctx, s.db, userID, limit)
}

func (s *Service) MarkRead(ctx context.Context, userID, id snowflake.ID) error {
	found, err := s.repo.MarkRead(ctx, s.db, userID, id, s.clock.Now())
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) insert(ctx context.Context, items ...domain.Notification) {
	if err := s.repo.Insert(ctx, s.db, items); err != nil {
		s.log.Warn("failed to store notifications", zap.Int("count", len(items)), zap.Error(err))
	}
}

// sendEmail runs on a detached context so a finished request does not cancel it.
func (s *Service) sendEmail(userID snowflake.ID, templateName string, data map[string]any, receipt *pdf.ReceiptData) {
	if s.email == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), emailTimeout)
		defer cancel()

		contacts, err := s.repo.FindContacts(ctx, s.db, []snowflake.ID{userID})
		if err != nil || len(contacts) == 0 || contacts[0].Email == "" {
			s.log.Warn("email skipped, no contact",
				zap.String("user_id", userID.String()),
				zap.String("template", templateName),
				zap.Error(err),
			)
			return
		}
		data["name"] = contacts[0].DisplayName

		var attachments []email.Attachment
		if receipt != nil && s.pdf != nil {
			receipt.BuyerName = contacts[0].DisplayName
			doc, err := s.pdf.GenerateReceipt(ctx, *receipt)
			if err != nil {
				s.log.Warn("receipt generation failed", zap.String("order_id", receipt.OrderID), zap.Error(err))
			} else if len(doc) > 0 {
				attachments = append(attachments, email.Attachment{
					Filename:    "receipt-" + receipt.OrderID + ".pdf",
					ContentType: "application/pdf",
					Data:        doc,
				})
			}
		}

		if err := s.email.SendTemplate(ctx, []string{contacts[0].Email}, templateName, data, attachments...); err != nil {
			s.log.Warn("email delivery failed",
				zap.String("user_id", userID.String()),
				zap.String("template", templateName),
				zap.Error(err),
			)
		}
	}()
}

func notification(s *Service, userID snowflake.ID, kind domain.Kind, title, body string, payload map[string]any) domain.Notification {
	raw, _ := json.Marshal(payload)
	return domain.Notification{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		Payload:   datatypes.JSON(raw),
		CreatedAt: s.clock.Now(),
	}
}

func receiptFor(order orderdomain.Order, items []orderdomain.OrderItem, now time.Time) pdf.ReceiptData {
	paidAt := now
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}
	data := pdf.ReceiptData{
		OrderID:       order.ID.String(),
		DatePaid:      paidAt.Format("2006-01-02"),
		PaymentMethod: order.PaymentMethod.Wire(),
		Subtotal:      order.Subtotal.StringFixed(2),
		ServiceFee:    order.ServiceFee.StringFixed(2),
		Total:         order.Total.StringFixed(2),
	}
	for _, item := range items {
		data.Items = append(data.Items, pdf.ReceiptItem{
			Description: item.ProductName,
			Qty:         item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			Amount:      item.Total.StringFixed(2),
		})
	}
	return data
}

func hasManualItems(items []orderdomain.OrderItem) bool {
	for _, item := range items {
		if item.DeliveryType == catalogdomain.DeliveryTypeManual {
			return true
		}
	}
	return false
}
