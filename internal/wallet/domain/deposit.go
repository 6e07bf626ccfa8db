package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "PENDING"
	DepositStatusCompleted DepositStatus = "COMPLETED"
	DepositStatusExpired   DepositStatus = "EXPIRED"
	DepositStatusFailed    DepositStatus = "FAILED"
)

var (
	ErrDepositNotFound     = errors.New("deposit_not_found")
	ErrDepositInFlight     = errors.New("deposit_in_flight")
	ErrUnsupportedAsset    = errors.New("unsupported_asset")
	ErrDepositBelowMinimum = errors.New("deposit_below_minimum")
)

// Deposit is a wallet top-up awaiting an external transfer that carries MemoToken.
type Deposit struct {
	ID             snowflake.ID     `json:"id" gorm:"primaryKey"`
	UserID         snowflake.ID     `json:"user_id" gorm:"not null;index"`
	MemoToken      string           `json:"memo_token" gorm:"type:text;not null;uniqueIndex"`
	Amount         decimal.Decimal  `json:"amount" gorm:"type:numeric(20,8);not null"`
	Coin           string           `json:"coin" gorm:"type:text;not null"`
	Network        string           `json:"network" gorm:"type:text;not null"`
	Address        string           `json:"address" gorm:"type:text;not null"`
	Sandbox        bool             `json:"sandbox" gorm:"not null;default:false"`
	Status         DepositStatus    `json:"status" gorm:"type:text;not null"`
	ExpiresAt      time.Time        `json:"expires_at" gorm:"not null"`
	CreditedAmount *decimal.Decimal `json:"credited_amount,omitempty" gorm:"type:numeric(20,8)"`
	TxID           *string          `json:"tx_id,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (Deposit) TableName() string { return "wallet_deposits" }

type CreateDepositRequest struct {
	UserID  snowflake.ID
	Amount  decimal.Decimal
	Coin    string
	Network string
}

// DepositView is the externally visible deposit state.
type DepositView struct {
	ID             snowflake.ID     `json:"deposit_id"`
	Status         string           `json:"status"`
	Amount         decimal.Decimal  `json:"amount"`
	Coin           string           `json:"coin"`
	Network        string           `json:"network"`
	Address        string           `json:"address"`
	MemoToken      string           `json:"memo_token"`
	ExpiresAt      time.Time        `json:"expires_at"`
	Sandbox        bool             `json:"sandbox"`
	CreditedAmount *decimal.Decimal `json:"credited_amount,omitempty"`
	NewBalance     *decimal.Decimal `json:"new_balance,omitempty"`
}

const (
	DepositViewPending   = "pending"
	DepositViewCompleted = "completed"
	DepositViewExpired   = "expired"
)

func (d Deposit) ViewStatus() string {
	switch d.Status {
	case DepositStatusCompleted:
		return DepositViewCompleted
	case DepositStatusExpired, DepositStatusFailed:
		return DepositViewExpired
	default:
		return DepositViewPending
	}
}

type DepositService interface {
	CreateDeposit(ctx context.Context, req CreateDepositRequest) (DepositView, error)
	DepositStatus(ctx context.Context, userID, depositID snowflake.ID) (DepositView, error)
	// CompleteDeposit moves a PENDING deposit to COMPLETED and credits the wallet.
	// It returns false when another caller already settled or expired the deposit.
	CompleteDeposit(ctx context.Context, tx *gorm.DB, depositID snowflake.ID, amount decimal.Decimal, txID string) (bool, error)
	ExpireDue(ctx context.Context) (int64, error)
	ListPending(ctx context.Context, limit int) ([]Deposit, error)
	Get(ctx context.Context, depositID snowflake.ID) (*Deposit, error)
}
