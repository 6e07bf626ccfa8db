package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductType classifies what a listing sells. Only subscriptions are time-boxed
// and therefore eligible for prorated refunds.
type ProductType string

const (
	ProductTypeAccountSubscription ProductType = "ACCOUNT_SUBSCRIPTION"
	ProductTypeGameCode            ProductType = "GAME_CODE"
	ProductTypeGiftCard            ProductType = "GIFT_CARD"
	ProductTypeSoftwareLicense     ProductType = "SOFTWARE_LICENSE"
	ProductTypeService             ProductType = "SERVICE"
)

func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeAccountSubscription,
		ProductTypeGameCode,
		ProductTypeGiftCard,
		ProductTypeSoftwareLicense,
		ProductTypeService:
		return true
	default:
		return false
	}
}

func (t ProductType) IsTimeBoxed() bool {
	return t == ProductTypeAccountSubscription
}

type DeliveryType string

const (
	DeliveryTypeInstant DeliveryType = "INSTANT"
	DeliveryTypeManual  DeliveryType = "MANUAL"
)

func (d DeliveryType) IsInstant() bool {
	return d == DeliveryTypeInstant
}

var ErrProductNotFound = errors.New("product_not_found")

type Product struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	SellerID     snowflake.ID    `json:"seller_id" gorm:"not null;index"`
	Name         string          `json:"name" gorm:"type:text;not null"`
	Type         ProductType     `json:"product_type" gorm:"column:product_type;type:text;not null"`
	DeliveryType DeliveryType    `json:"delivery_type" gorm:"type:text;not null"`
	Price        decimal.Decimal `json:"price" gorm:"type:numeric(20,2);not null"`
	DurationDays int             `json:"duration_days"`
	SoldCount    int             `json:"sold_count" gorm:"not null;default:0"`
	IsActive     bool            `json:"is_active" gorm:"not null;default:true"`
	DeletedAt    *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// Purchasable reports whether the listing can be put in a cart.
func (p Product) Purchasable() bool {
	return p.IsActive && p.DeletedAt == nil
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Product, error)
	IncrementSold(ctx context.Context, db *gorm.DB, productID snowflake.ID, qty int) error
	DecrementSold(ctx context.Context, db *gorm.DB, productID snowflake.ID, qty int) error
}
