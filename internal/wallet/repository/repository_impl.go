package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/digimart/internal/wallet/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Wallet, error) {
	var item domain.Wallet
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, balance, version, created_at, updated_at
		 FROM wallets
		 WHERE user_id = ?
		 LIMIT 1`,
		userID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.UserID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) EnsureWallet(ctx context.Context, db *gorm.DB, userID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallets (user_id, balance, version, created_at, updated_at)
		 VALUES (?, 0, 0, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
		at,
		at,
	).Error
}

// CompareAndSwap writes the new balance only if nobody bumped the version since it was read.
func (r *repo) CompareAndSwap(ctx context.Context, db *gorm.DB, userID snowflake.ID, version int64, balance decimal.Decimal, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE wallets
		 SET balance = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND version = ?`,
		balance,
		at,
		userID,
		version,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallet_transactions (
			id, user_id, type, amount, balance_after, order_id, refund_id, deposit_id,
			description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.UserID,
		tx.Type,
		tx.Amount,
		tx.BalanceAfter,
		tx.OrderID,
		tx.RefundID,
		tx.DepositID,
		tx.Description,
		tx.CreatedAt,
	).Error
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, type, amount, balance_after, order_id, refund_id, deposit_id,
			description, created_at
		 FROM wallet_transactions
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		userID,
		limit,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListAllTransactions(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, type, amount, balance_after, order_id, refund_id, deposit_id,
			description, created_at
		 FROM wallet_transactions
		 WHERE user_id = ?
		 ORDER BY id ASC`,
		userID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) InsertDeposit(ctx context.Context, db *gorm.DB, deposit *domain.Deposit) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallet_deposits (
			id, user_id, memo_token, amount, coin, network, address, sandbox, status,
			expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		deposit.ID,
		deposit.UserID,
		deposit.MemoToken,
		deposit.Amount,
		deposit.Coin,
		deposit.Network,
		deposit.Address,
		deposit.Sandbox,
		deposit.Status,
		deposit.ExpiresAt,
		deposit.CreatedAt,
		deposit.UpdatedAt,
	).Error
}

const depositColumns = `id, user_id, memo_token, amount, coin, network, address, sandbox, status,
	expires_at, credited_amount, tx_id, completed_at, created_at, updated_at`

func (r *repo) FindDeposit(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Deposit, error) {
	var item domain.Deposit
	err := db.WithContext(ctx).Raw(
		`SELECT `+depositColumns+`
		 FROM wallet_deposits
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindPendingDepositByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Deposit, error) {
	var item domain.Deposit
	err := db.WithContext(ctx).Raw(
		`SELECT `+depositColumns+`
		 FROM wallet_deposits
		 WHERE user_id = ? AND status = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
		domain.DepositStatusPending,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) CompleteDeposit(ctx context.Context, db *gorm.DB, id snowflake.ID, amount decimal.Decimal, txID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE wallet_deposits
		 SET status = ?, credited_amount = ?, tx_id = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.DepositStatusCompleted,
		amount,
		txID,
		at,
		at,
		id,
		domain.DepositStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ExpireDeposit(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE wallet_deposits
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.DepositStatusExpired,
		at,
		id,
		domain.DepositStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ExpireDueDeposits(ctx context.Context, db *gorm.DB, userID *snowflake.ID, now time.Time) (int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.Deposit{}).
		Where("status = ? AND expires_at <= ?", domain.DepositStatusPending, now)
	if userID != nil {
		stmt = stmt.Where("user_id = ?", *userID)
	}
	res := stmt.Updates(map[string]any{
		"status":     domain.DepositStatusExpired,
		"updated_at": now,
	})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) ListPendingDeposits(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Deposit, error) {
	var items []domain.Deposit
	err := db.WithContext(ctx).Raw(
		`SELECT `+depositColumns+`
		 FROM wallet_deposits
		 WHERE status = ? AND sandbox = ? AND expires_at > ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		domain.DepositStatusPending,
		false,
		now,
		limit,
	).Scan(&items).Error
	return items, err
}
