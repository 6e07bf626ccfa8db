package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SellerProfile carries the seller's earnings counters. AvailableBalance never
// goes below zero and never exceeds TotalEarnings minus TotalWithdrawn.
type SellerProfile struct {
	UserID           snowflake.ID    `json:"user_id" gorm:"primaryKey"`
	TotalSales       int             `json:"total_sales" gorm:"not null;default:0"`
	TotalEarnings    decimal.Decimal `json:"total_earnings" gorm:"type:numeric(20,2);not null"`
	AvailableBalance decimal.Decimal `json:"available_balance" gorm:"type:numeric(20,2);not null"`
	TotalWithdrawn   decimal.Decimal `json:"total_withdrawn" gorm:"type:numeric(20,2);not null"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (SellerProfile) TableName() string { return "seller_profiles" }

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*SellerProfile, error)
	Credit(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount decimal.Decimal, salesDelta int, at time.Time) error
	Reverse(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount decimal.Decimal, salesDelta int, at time.Time) error
}
