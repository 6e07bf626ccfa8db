package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionDepositCredit      TransactionType = "DEPOSIT_CREDIT"
	TransactionRefundCredit       TransactionType = "REFUND_CREDIT"
	TransactionPurchaseDebit      TransactionType = "PURCHASE_DEBIT"
	TransactionAdjustmentCredit   TransactionType = "ADJUSTMENT_CREDIT"
	TransactionCancellationCredit TransactionType = "CANCELLATION_CREDIT"
)

func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionDepositCredit, TransactionRefundCredit, TransactionAdjustmentCredit, TransactionCancellationCredit:
		return true
	default:
		return false
	}
}

func (t TransactionType) IsDebit() bool {
	return t == TransactionPurchaseDebit
}

var (
	ErrInsufficientFunds      = errors.New("insufficient_funds")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidTransactionType = errors.New("invalid_transaction_type")
	ErrInvalidUser            = errors.New("invalid_user")
	ErrConcurrentUpdate       = errors.New("wallet_concurrent_update")
)

// Wallet is the materialized balance. Version increments on every mutation.
type Wallet struct {
	UserID    snowflake.ID    `json:"user_id" gorm:"primaryKey"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:numeric(20,2);not null"`
	Version   int64           `json:"version" gorm:"not null;default:0"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

// Transaction is an append-only ledger line. Amount is signed: debits are negative.
type Transaction struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID       snowflake.ID    `json:"user_id" gorm:"not null;index"`
	Type         TransactionType `json:"type" gorm:"type:text;not null"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:numeric(20,2);not null"`
	BalanceAfter decimal.Decimal `json:"balance_after" gorm:"type:numeric(20,2);not null"`
	OrderID      *snowflake.ID   `json:"order_id,omitempty"`
	RefundID     *snowflake.ID   `json:"refund_id,omitempty"`
	DepositID    *snowflake.ID   `json:"deposit_id,omitempty"`
	Description  string          `json:"description" gorm:"type:text"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (Transaction) TableName() string { return "wallet_transactions" }

type EntryRequest struct {
	UserID      snowflake.ID
	Type        TransactionType
	Amount      decimal.Decimal
	OrderID     *snowflake.ID
	RefundID    *snowflake.ID
	DepositID   *snowflake.ID
	Description string
}

type EntryResult struct {
	TransactionID snowflake.ID
	Balance       decimal.Decimal
}

// ReplayResult compares the stored balance with the fold of the log.
type ReplayResult struct {
	UserID     snowflake.ID    `json:"user_id"`
	Stored     decimal.Decimal `json:"stored"`
	Replayed   decimal.Decimal `json:"replayed"`
	Entries    int             `json:"entries"`
	Consistent bool            `json:"consistent"`
}

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Wallet, error)
	EnsureWallet(ctx context.Context, db *gorm.DB, userID snowflake.ID, at time.Time) error
	CompareAndSwap(ctx context.Context, db *gorm.DB, userID snowflake.ID, version int64, balance decimal.Decimal, at time.Time) (bool, error)
	InsertTransaction(ctx context.Context, db *gorm.DB, tx *Transaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]Transaction, error)
	ListAllTransactions(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Transaction, error)

	InsertDeposit(ctx context.Context, db *gorm.DB, deposit *Deposit) error
	FindDeposit(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Deposit, error)
	FindPendingDepositByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Deposit, error)
	CompleteDeposit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount decimal.Decimal, txID string, at time.Time) (bool, error)
	ExpireDeposit(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	ExpireDueDeposits(ctx context.Context, db *gorm.DB, userID *snowflake.ID, now time.Time) (int64, error)
	ListPendingDeposits(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Deposit, error)
}

type Service interface {
	Credit(ctx context.Context, req EntryRequest) (EntryResult, error)
	Debit(ctx context.Context, req EntryRequest) (EntryResult, error)
	CreditTx(ctx context.Context, tx *gorm.DB, req EntryRequest) (EntryResult, error)
	DebitTx(ctx context.Context, tx *gorm.DB, req EntryRequest) (EntryResult, error)
	Balance(ctx context.Context, userID snowflake.ID) (decimal.Decimal, error)
	Transactions(ctx context.Context, userID snowflake.ID, limit int) ([]Transaction, error)
	Replay(ctx context.Context, userID snowflake.ID) (ReplayResult, error)
}
