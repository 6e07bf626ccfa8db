package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
)

type Input struct {
	BuyerID   snowflake.ID
	Total     decimal.Decimal
	Method    orderdomain.PaymentMethod
	ItemCount int
}

// Assessment is the risk verdict for one checkout.
type Assessment struct {
	IsHighValue          bool     `json:"is_high_value"`
	RequiresManualReview bool     `json:"requires_manual_review"`
	ShouldDelay          bool     `json:"should_delay"`
	DelayMinutes         int      `json:"delay_minutes"`
	Velocity             int64    `json:"velocity"`
	Reasons              []string `json:"reasons,omitempty"`
}

const (
	ReasonHighValueReversible = "high_value_reversible_method"
	ReasonVelocity            = "order_velocity"
	ReasonManualThreshold     = "manual_review_threshold"
	ReasonRulePrefix          = "rule:"
)

type Service interface {
	Assess(ctx context.Context, in Input) (Assessment, error)
}
