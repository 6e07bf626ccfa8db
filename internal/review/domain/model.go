package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
)

var (
	ErrNotUnderReview = errors.New("order_not_under_review")
	ErrInvalidAction  = errors.New("invalid_review_action")
	ErrInvalidAdmin   = errors.New("invalid_admin")
)

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionApprove:
		return ActionApprove, nil
	case ActionReject:
		return ActionReject, nil
	default:
		return "", ErrInvalidAction
	}
}

// CancelReasonRejected marks orders cancelled by an admin.
const CancelReasonRejected = "review_rejected"

type Request struct {
	AdminID snowflake.ID
	OrderID snowflake.ID
	Action  Action
	Reason  string
}

// Decision reports what the review did to the order and to the balances.
type Decision struct {
	OrderID        snowflake.ID       `json:"order_id"`
	Action         Action             `json:"action"`
	Status         orderdomain.Status `json:"status"`
	Credited       decimal.Decimal    `json:"credited"`
	SellerReversed decimal.Decimal    `json:"seller_reversed"`
	Suspended      int64              `json:"suspended_units"`
}

type Service interface {
	Review(ctx context.Context, req Request) (Decision, error)
	Approve(ctx context.Context, adminID, orderID snowflake.ID, reason string) (Decision, error)
	Reject(ctx context.Context, adminID, orderID snowflake.ID, reason string) (Decision, error)
}
