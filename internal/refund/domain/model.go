package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotRefundable          = errors.New("order_not_refundable")
	ErrRefundWindowExpired    = errors.New("refund_window_expired")
	ErrRefundAlreadyRequested = errors.New("refund_already_requested")
	ErrNothingToRefund        = errors.New("nothing_to_refund")
	ErrOrderNotCompleted      = errors.New("order_not_completed")
)

type Type string

const (
	TypeFull            Type = "FULL"
	TypePartialProrated Type = "PARTIAL_PRORATED"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusProcessed Status = "PROCESSED"
	StatusRejected  Status = "REJECTED"
)

// RefundRequest is unique per order. Requests are processed on creation.
type RefundRequest struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrderID        snowflake.ID    `json:"order_id" gorm:"not null;uniqueIndex"`
	BuyerID        snowflake.ID    `json:"buyer_id" gorm:"not null;index"`
	SellerID       snowflake.ID    `json:"seller_id" gorm:"not null"`
	Type           Type            `json:"type" gorm:"type:text;not null"`
	Status         Status          `json:"status" gorm:"type:text;not null"`
	OriginalAmount decimal.Decimal `json:"original_amount" gorm:"type:numeric(20,2);not null"`
	RefundAmount   decimal.Decimal `json:"refund_amount" gorm:"type:numeric(20,2);not null"`
	SellerDebit    decimal.Decimal `json:"seller_debit" gorm:"type:numeric(20,2);not null"`
	UsedDays       int             `json:"used_days" gorm:"not null"`
	RemainingDays  int             `json:"remaining_days" gorm:"not null"`
	TotalDays      int             `json:"total_days" gorm:"not null"`
	Reason         string          `json:"reason,omitempty"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (RefundRequest) TableName() string { return "refund_requests" }

// Proration is the refundable share of one time-boxed item.
type Proration struct {
	Type          Type            `json:"type"`
	UsedDays      int             `json:"used_days"`
	RemainingDays int             `json:"remaining_days"`
	TotalDays     int             `json:"total_days"`
	Amount        decimal.Decimal `json:"amount"`
	Eligible      bool            `json:"eligible"`
}

type Request struct {
	BuyerID snowflake.ID
	OrderID snowflake.ID
	Reason  string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, req *RefundRequest) error
	FindActiveByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*RefundRequest, error)
}

type Service interface {
	// Quote computes the refund without persisting anything.
	Quote(ctx context.Context, buyerID, orderID snowflake.ID) (RefundRequest, error)
	RequestRefund(ctx context.Context, req Request) (RefundRequest, error)
}
