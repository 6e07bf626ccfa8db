package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Kind string

const (
	KindOrderCompleted   Kind = "order_completed"
	KindOrderUnderReview Kind = "order_under_review"
	KindOrderCancelled   Kind = "order_cancelled"
	KindSaleCompleted    Kind = "sale_completed"
	KindRefundProcessed  Kind = "refund_processed"
	KindDepositCompleted Kind = "deposit_completed"
)

var ErrNotificationNotFound = errors.New("notification_not_found")

type Notification struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID   `json:"user_id" gorm:"not null;index"`
	Kind      Kind           `json:"kind" gorm:"type:text;not null"`
	Title     string         `json:"title" gorm:"type:text;not null"`
	Body      string         `json:"body" gorm:"type:text;not null"`
	Payload   datatypes.JSON `json:"payload,omitempty" gorm:"type:jsonb"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

// Contact is the read-only slice of the external user directory needed for email.
type Contact struct {
	ID          snowflake.ID `json:"id"`
	Email       string       `json:"email"`
	DisplayName string       `json:"display_name"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, items []Notification) error
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, db *gorm.DB, userID, id snowflake.ID, at time.Time) (bool, error)
	FindContacts(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Contact, error)
}

// Service delivers in-app notifications and best-effort emails. Delivery
// failures are logged and never surface to the caller.
type Service interface {
	OrderFulfilled(ctx context.Context, order orderdomain.Order, items []orderdomain.OrderItem)
	OrderCancelled(ctx context.Context, order orderdomain.Order, reason string, credited decimal.Decimal)
	RefundProcessed(ctx context.Context, order orderdomain.Order, amount decimal.Decimal)
	DepositCompleted(ctx context.Context, userID, depositID snowflake.ID, amount decimal.Decimal)
	List(ctx context.Context, userID snowflake.ID, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id snowflake.ID) error
	// Wait blocks until queued emails have been attempted.
	Wait()
}
