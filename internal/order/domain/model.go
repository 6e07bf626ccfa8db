package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/digimart/internal/catalog/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusProcessing  Status = "PROCESSING"
	StatusCompleted   Status = "COMPLETED"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusCancelled   Status = "CANCELLED"
	StatusRefunded    Status = "REFUNDED"
)

// IsFinal reports states fulfillment must never touch again.
func (s Status) IsFinal() bool {
	switch s {
	case StatusCompleted, StatusRefunded, StatusCancelled:
		return true
	default:
		return false
	}
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

var (
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrInvalidDetails       = errors.New("invalid_payment_details")
)

type Order struct {
	ID                   snowflake.ID    `json:"id" gorm:"primaryKey"`
	CheckoutGroupID      snowflake.ID    `json:"checkout_group_id" gorm:"not null;index"`
	BuyerID              snowflake.ID    `json:"buyer_id" gorm:"not null;index"`
	SellerID             snowflake.ID    `json:"seller_id" gorm:"not null;index"`
	Subtotal             decimal.Decimal `json:"subtotal" gorm:"type:numeric(20,2);not null"`
	ServiceFee           decimal.Decimal `json:"service_fee" gorm:"type:numeric(20,2);not null"`
	Total                decimal.Decimal `json:"total" gorm:"type:numeric(20,2);not null"`
	CommissionRate       decimal.Decimal `json:"commission_rate" gorm:"type:numeric(6,4);not null"`
	CommissionAmount     decimal.Decimal `json:"commission_amount" gorm:"type:numeric(20,2);not null"`
	SellerEarnings       decimal.Decimal `json:"seller_earnings" gorm:"type:numeric(20,2);not null"`
	PaymentMethod        PaymentMethod   `json:"payment_method" gorm:"type:text;not null"`
	PaymentStatus        PaymentStatus   `json:"payment_status" gorm:"type:text;not null"`
	Status               Status          `json:"status" gorm:"type:text;not null;index"`
	IsHighValue          bool            `json:"is_high_value"`
	RequiresManualReview bool            `json:"requires_manual_review"`
	DeliveryScheduledAt  *time.Time      `json:"delivery_scheduled_at,omitempty"`
	ExpiresAt            *time.Time      `json:"expires_at,omitempty"`
	PaidAt               *time.Time      `json:"paid_at,omitempty"`
	FulfilledAt          *time.Time      `json:"fulfilled_at,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	CancelledAt          *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason         string          `json:"cancel_reason,omitempty"`
	RefundedAmount       decimal.Decimal `json:"refunded_amount" gorm:"type:numeric(20,2);not null"`
	ReviewedBy           *snowflake.ID   `json:"reviewed_by,omitempty"`
	ReviewedAt           *time.Time      `json:"reviewed_at,omitempty"`
	ReviewNote           string          `json:"review_note,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`

	Items []OrderItem `json:"items,omitempty" gorm:"-"`
}

func (Order) TableName() string { return "orders" }

// DeliveryDeferred reports whether the fraud delay window is still open at now.
func (o Order) DeliveryDeferred(now time.Time) bool {
	return o.DeliveryScheduledAt != nil && now.Before(*o.DeliveryScheduledAt)
}

// Fulfilled reports whether inventory and seller credit were already applied.
func (o Order) Fulfilled() bool {
	return o.FulfilledAt != nil
}

// OrderItem snapshots the product at purchase time.
type OrderItem struct {
	ID           snowflake.ID               `json:"id" gorm:"primaryKey"`
	OrderID      snowflake.ID               `json:"order_id" gorm:"not null;index"`
	ProductID    snowflake.ID               `json:"product_id" gorm:"not null"`
	ProductName  string                     `json:"product_name" gorm:"type:text;not null"`
	ProductType  catalogdomain.ProductType  `json:"product_type" gorm:"type:text;not null"`
	DeliveryType catalogdomain.DeliveryType `json:"delivery_type" gorm:"type:text;not null"`
	UnitPrice    decimal.Decimal            `json:"unit_price" gorm:"type:numeric(20,2);not null"`
	Quantity     int                        `json:"quantity" gorm:"not null"`
	Total        decimal.Decimal            `json:"total" gorm:"type:numeric(20,2);not null"`
	DurationDays int                        `json:"duration_days"`
	IsDelivered  bool                       `json:"is_delivered"`
	DeliveredAt  *time.Time                 `json:"delivered_at,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
}

func (OrderItem) TableName() string { return "order_items" }

// Payment is one-to-one with an order. Orders of one checkout share
// CheckoutGroupID and, for pending methods, the same provider reference.
type Payment struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrderID         snowflake.ID    `json:"order_id" gorm:"not null;uniqueIndex"`
	CheckoutGroupID snowflake.ID    `json:"checkout_group_id" gorm:"not null;index"`
	Method          PaymentMethod   `json:"method" gorm:"type:text;not null"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:numeric(20,2);not null"`
	Status          PaymentStatus   `json:"status" gorm:"type:text;not null"`
	ExternalID      *string         `json:"external_id,omitempty"`
	MemoToken       *string         `json:"memo_token,omitempty"`
	Details         datatypes.JSON  `json:"details,omitempty" gorm:"type:jsonb"`
	Sandbox         bool            `json:"sandbox"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// PendingPayment is a crypto checkout awaiting transfer confirmation.
type PendingPayment struct {
	OrderID         snowflake.ID    `json:"order_id"`
	CheckoutGroupID snowflake.ID    `json:"checkout_group_id"`
	BuyerID         snowflake.ID    `json:"buyer_id"`
	Amount          decimal.Decimal `json:"amount"`
	MemoToken       string          `json:"memo_token"`
	Details         datatypes.JSON  `json:"details"`
	ExpiresAt       *time.Time      `json:"expires_at"`
}
