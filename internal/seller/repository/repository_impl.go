package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/digimart/internal/seller/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.SellerProfile, error) {
	var item domain.SellerProfile
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, total_sales, total_earnings, available_balance, total_withdrawn,
			created_at, updated_at
		 FROM seller_profiles
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

// Credit adds earnings in one statement, creating the profile row on first sale.
func (r *repo) Credit(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount decimal.Decimal, salesDelta int, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO seller_profiles (
			user_id, total_sales, total_earnings, available_balance, total_withdrawn,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			total_sales = seller_profiles.total_sales + excluded.total_sales,
			total_earnings = seller_profiles.total_earnings + excluded.total_earnings,
			available_balance = seller_profiles.available_balance + excluded.available_balance,
			updated_at = excluded.updated_at`,
		userID,
		salesDelta,
		amount,
		amount,
		at,
		at,
	).Error
}

// Reverse undoes a prior credit, clamping every counter at zero.
func (r *repo) Reverse(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount decimal.Decimal, salesDelta int, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE seller_profiles
		 SET total_sales = CASE WHEN total_sales > ? THEN total_sales - ? ELSE 0 END,
			total_earnings = CASE WHEN total_earnings > ? THEN total_earnings - ? ELSE 0 END,
			available_balance = CASE WHEN available_balance > ? THEN available_balance - ? ELSE 0 END,
			updated_at = ?
		 WHERE user_id = ?`,
		salesDelta,
		salesDelta,
		amount,
		amount,
		amount,
		amount,
		at,
		userID,
	).Error
}
