package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
)

var (
	ErrPaymentNotSettled = errors.New("payment_not_settled")
	ErrNotForceable      = errors.New("order_not_forceable")
)

// Result describes what a fulfillment attempt did to the order.
type Result struct {
	OrderID      snowflake.ID       `json:"order_id"`
	Status       orderdomain.Status `json:"status"`
	AlreadyFinal bool               `json:"already_final"`
	Deferred     bool               `json:"deferred"`
	Delivered    int                `json:"delivered"`
}

// ForceOptions carries the review metadata written when an admin
// completes an order whose fulfillment never ran.
type ForceOptions struct {
	ReviewerID snowflake.ID
	Note       string
}

type Service interface {
	// FulfillOrder settles the payment and delivers the order. It is a no-op
	// for orders already in a terminal state.
	FulfillOrder(ctx context.Context, orderID snowflake.ID, externalPaymentID string) (Result, error)
	FulfillGroup(ctx context.Context, groupID snowflake.ID, externalPaymentID string) ([]Result, error)
	ForceComplete(ctx context.Context, orderID snowflake.ID, opts ForceOptions) (Result, error)
	ResumeDeferred(ctx context.Context, now time.Time) (int, error)

	ExpireOrder(ctx context.Context, orderID snowflake.ID, reason string) (bool, error)
	ExpireGroup(ctx context.Context, groupID snowflake.ID, reason string) (int, error)
	ExpireCheckouts(ctx context.Context) (int, error)
}

const (
	CancelReasonPaymentExpired = "payment_expired"
	CancelReasonSessionExpired = "checkout_session_expired"
)
