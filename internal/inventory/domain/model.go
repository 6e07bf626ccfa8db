package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type UnitStatus string

const (
	UnitStatusAvailable UnitStatus = "AVAILABLE"
	UnitStatusReserved  UnitStatus = "RESERVED"
	UnitStatusSold      UnitStatus = "SOLD"
	UnitStatusSuspended UnitStatus = "SUSPENDED"
	UnitStatusExpired   UnitStatus = "EXPIRED"
)

var (
	ErrAllocationShortfall = errors.New("allocation_shortfall")
	ErrInsufficientStock   = errors.New("insufficient_stock")
	ErrEmptyUpload         = errors.New("empty_upload")
	ErrUploadTooLarge      = errors.New("upload_too_large")
	ErrInvalidAccount      = errors.New("invalid_account")
	ErrNotProductOwner     = errors.New("not_product_owner")
	ErrProductNotFound     = errors.New("product_not_found")
	ErrProductNotInstant   = errors.New("product_not_instant_delivery")
)

// InsufficientStockError names the product and the units that could be sold.
type InsufficientStockError struct {
	ProductID snowflake.ID
	Name      string
	Requested int
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", e.Name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ProductCode is a single-use code. Once SOLD it stays bound to its buyer and order item.
type ProductCode struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	ProductID   snowflake.ID  `json:"product_id" gorm:"not null;index"`
	Code        string        `json:"-" gorm:"type:text;not null"`
	Status      UnitStatus    `json:"status" gorm:"type:text;not null"`
	BuyerID     *snowflake.ID `json:"buyer_id,omitempty"`
	OrderID     *snowflake.ID `json:"order_id,omitempty"`
	OrderItemID *snowflake.ID `json:"order_item_id,omitempty"`
	SoldAt      *time.Time    `json:"sold_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (ProductCode) TableName() string { return "product_codes" }

// ProductAccount is a shared credential whose profile slots sell independently.
type ProductAccount struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductID      snowflake.ID `json:"product_id" gorm:"not null;index"`
	Email          string       `json:"email" gorm:"type:text;not null"`
	SealedPassword string       `json:"-" gorm:"type:text;not null"`
	MaxProfiles    int          `json:"max_profiles" gorm:"not null"`
	SoldProfiles   int          `json:"sold_profiles" gorm:"not null;default:0"`
	Status         UnitStatus   `json:"status" gorm:"type:text;not null"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (ProductAccount) TableName() string { return "product_accounts" }

func (a ProductAccount) RemainingProfiles() int {
	if a.SoldProfiles >= a.MaxProfiles {
		return 0
	}
	return a.MaxProfiles - a.SoldProfiles
}

type AccountProfileSale struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	AccountID   snowflake.ID `json:"account_id" gorm:"not null;index"`
	ProductID   snowflake.ID `json:"product_id" gorm:"not null"`
	OrderID     snowflake.ID `json:"order_id" gorm:"not null;index"`
	OrderItemID snowflake.ID `json:"order_item_id" gorm:"not null"`
	BuyerID     snowflake.ID `json:"buyer_id" gorm:"not null"`
	ProfileNo   int          `json:"profile_no" gorm:"not null"`
	Status      UnitStatus   `json:"status" gorm:"type:text;not null"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (AccountProfileSale) TableName() string { return "account_profile_sales" }

type AllocationRequest struct {
	ProductID   snowflake.ID
	OrderID     snowflake.ID
	OrderItemID snowflake.ID
	BuyerID     snowflake.ID
	Quantity    int
}

type Allocation struct {
	CodeIDs  []snowflake.ID
	Profiles []AccountProfileSale
}

func (a Allocation) Count() int {
	return len(a.CodeIDs) + len(a.Profiles)
}

type UploadCodesRequest struct {
	SellerID  snowflake.ID
	ProductID snowflake.ID
	Codes     []string
}

type AccountInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	MaxProfiles int    `json:"max_profiles"`
}

type UploadAccountsRequest struct {
	SellerID  snowflake.ID
	ProductID snowflake.ID
	Accounts  []AccountInput
}

type UploadResult struct {
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
}

// DeliveredUnit is what a buyer sees for one purchased unit.
type DeliveredUnit struct {
	OrderItemID snowflake.ID `json:"order_item_id"`
	Code        string       `json:"code,omitempty"`
	Email       string       `json:"email,omitempty"`
	Password    string       `json:"password,omitempty"`
	ProfileNo   int          `json:"profile_no,omitempty"`
	Status      UnitStatus   `json:"status"`
}

type Repository interface {
	CountAvailableCodes(ctx context.Context, db *gorm.DB, productID snowflake.ID) (int64, error)
	SumAvailableProfiles(ctx context.Context, db *gorm.DB, productID snowflake.ID) (int64, error)
	ListAvailableCodeIDs(ctx context.Context, db *gorm.DB, productID snowflake.ID, limit int) ([]snowflake.ID, error)
	ClaimCode(ctx context.Context, db *gorm.DB, codeID snowflake.ID, req AllocationRequest, at time.Time) (bool, error)
	ListAvailableAccounts(ctx context.Context, db *gorm.DB, productID snowflake.ID, limit int) ([]ProductAccount, error)
	ClaimProfile(ctx context.Context, db *gorm.DB, accountID snowflake.ID, at time.Time) (int, bool, error)
	InsertProfileSale(ctx context.Context, db *gorm.DB, sale *AccountProfileSale) error
	ExistingCodes(ctx context.Context, db *gorm.DB, productID snowflake.ID, codes []string) ([]string, error)
	InsertCode(ctx context.Context, db *gorm.DB, code *ProductCode) (bool, error)
	InsertAccount(ctx context.Context, db *gorm.DB, account *ProductAccount) error
	SuspendForOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, at time.Time) (int64, error)
	ListCodesByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]ProductCode, error)
	ListProfileSalesByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]AccountProfileSale, error)
	FindAccounts(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]ProductAccount, error)
}

type Service interface {
	Available(ctx context.Context, productID snowflake.ID) (int64, error)
	Allocate(ctx context.Context, tx *gorm.DB, req AllocationRequest) (Allocation, error)
	SuspendForOrder(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (int64, error)
	UploadCodes(ctx context.Context, req UploadCodesRequest) (UploadResult, error)
	UploadAccounts(ctx context.Context, req UploadAccountsRequest) (UploadResult, error)
	DeliveredUnits(ctx context.Context, orderID snowflake.ID) ([]DeliveredUnit, error)
}
