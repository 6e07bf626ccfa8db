package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/inventory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CountAvailableCodes(ctx context.Context, db *gorm.DB, productID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM product_codes WHERE product_id = ? AND status = ?`,
		productID,
		domain.UnitStatusAvailable,
	).Scan(&count).Error
	return count, err
}

func (r *repo) SumAvailableProfiles(ctx context.Context, db *gorm.DB, productID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(max_profiles - sold_profiles), 0)
		 FROM product_accounts
		 WHERE product_id = ? AND status = ? AND sold_profiles < max_profiles`,
		productID,
		domain.UnitStatusAvailable,
	).Scan(&total).Error
	return total, err
}

func (r *repo) ListAvailableCodeIDs(ctx context.Context, db *gorm.DB, productID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM product_codes
		 WHERE product_id = ? AND status = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		productID,
		domain.UnitStatusAvailable,
		limit,
	).Scan(&ids).Error
	return ids, err
}

// ClaimCode flips one code to SOLD only if it is still AVAILABLE.
func (r *repo) ClaimCode(ctx context.Context, db *gorm.DB, codeID snowflake.ID, req domain.AllocationRequest, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE product_codes
		 SET status = ?, buyer_id = ?, order_id = ?, order_item_id = ?, sold_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.UnitStatusSold,
		req.BuyerID,
		req.OrderID,
		req.OrderItemID,
		at,
		at,
		codeID,
		domain.UnitStatusAvailable,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListAvailableAccounts(ctx context.Context, db *gorm.DB, productID snowflake.ID, limit int) ([]domain.ProductAccount, error) {
	var items []domain.ProductAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, email, sealed_password, max_profiles, sold_profiles, status,
			created_at, updated_at
		 FROM product_accounts
		 WHERE product_id = ? AND status = ? AND sold_profiles < max_profiles
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		productID,
		domain.UnitStatusAvailable,
		limit,
	).Scan(&items).Error
	return items, err
}

// ClaimProfile takes the next free slot of an account and returns its 1-based number.
// The account turns SOLD when its last slot goes.
func (r *repo) ClaimProfile(ctx context.Context, db *gorm.DB, accountID snowflake.ID, at time.Time) (int, bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE product_accounts
		 SET sold_profiles = sold_profiles + 1,
			status = CASE WHEN sold_profiles + 1 >= max_profiles THEN ? ELSE status END,
			updated_at = ?
		 WHERE id = ? AND status = ? AND sold_profiles < max_profiles`,
		domain.UnitStatusSold,
		at,
		accountID,
		domain.UnitStatusAvailable,
	)
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}

	var sold int
	if err := db.WithContext(ctx).Raw(
		`SELECT sold_profiles FROM product_accounts WHERE id = ?`,
		accountID,
	).Scan(&sold).Error; err != nil {
		return 0, false, err
	}
	return sold, true, nil
}

func (r *repo) InsertProfileSale(ctx context.Context, db *gorm.DB, sale *domain.AccountProfileSale) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO account_profile_sales (
			id, account_id, product_id, order_id, order_item_id, buyer_id, profile_no, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID,
		sale.AccountID,
		sale.ProductID,
		sale.OrderID,
		sale.OrderItemID,
		sale.BuyerID,
		sale.ProfileNo,
		sale.Status,
		sale.CreatedAt,
	).Error
}

func (r *repo) ExistingCodes(ctx context.Context, db *gorm.DB, productID snowflake.ID, codes []string) ([]string, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var existing []string
	err := db.WithContext(ctx).Raw(
		`SELECT code FROM product_codes WHERE product_id = ? AND code IN ?`,
		productID,
		codes,
	).Scan(&existing).Error
	return existing, err
}

func (r *repo) InsertCode(ctx context.Context, db *gorm.DB, code *domain.ProductCode) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO product_codes (
			id, product_id, code, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id, code) DO NOTHING`,
		code.ID,
		code.ProductID,
		code.Code,
		code.Status,
		code.CreatedAt,
		code.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertAccount(ctx context.Context, db *gorm.DB, account *domain.ProductAccount) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO product_accounts (
			id, product_id, email, sealed_password, max_profiles, sold_profiles, status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.ProductID,
		account.Email,
		account.SealedPassword,
		account.MaxProfiles,
		account.SoldProfiles,
		account.Status,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

// SuspendForOrder suspends codes and profile slots that were sold to the order.
func (r *repo) SuspendForOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, at time.Time) (int64, error) {
	codes := db.WithContext(ctx).Exec(
		`UPDATE product_codes SET status = ?, updated_at = ? WHERE order_id = ? AND status = ?`,
		domain.UnitStatusSuspended,
		at,
		orderID,
		domain.UnitStatusSold,
	)
	if codes.Error != nil {
		return 0, codes.Error
	}
	profiles := db.WithContext(ctx).Exec(
		`UPDATE account_profile_sales SET status = ? WHERE order_id = ? AND status = ?`,
		domain.UnitStatusSuspended,
		orderID,
		domain.UnitStatusSold,
	)
	if profiles.Error != nil {
		return 0, profiles.Error
	}
	return codes.RowsAffected + profiles.RowsAffected, nil
}

func (r *repo) ListCodesByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.ProductCode, error) {
	var items []domain.ProductCode
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, code, status, buyer_id, order_id, order_item_id, sold_at,
			created_at, updated_at
		 FROM product_codes
		 WHERE order_id = ?
		 ORDER BY sold_at ASC, id ASC`,
		orderID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListProfileSalesByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.AccountProfileSale, error) {
	var items []domain.AccountProfileSale
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, product_id, order_id, order_item_id, buyer_id, profile_no, status, created_at
		 FROM account_profile_sales
		 WHERE order_id = ?
		 ORDER BY id ASC`,
		orderID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) FindAccounts(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.ProductAccount, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.ProductAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, email, sealed_password, max_profiles, sold_profiles, status,
			created_at, updated_at
		 FROM product_accounts
		 WHERE id IN ?`,
		ids,
	).Scan(&items).Error
	return items, err
}
