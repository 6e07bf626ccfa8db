package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, items []domain.Notification) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]domain.Notification, error) {
	var items []domain.Notification
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repo) MarkRead(ctx context.Context, db *gorm.DB, userID, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE notifications SET read_at = ? WHERE id = ? AND user_id = ? AND read_at IS NULL`,
		at,
		id,
		userID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	var count int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM notifications WHERE id = ? AND user_id = ?`,
		id,
		userID,
	).Scan(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) FindContacts(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Contact
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, display_name FROM users WHERE id IN ?`,
		ids,
	).Scan(&items).Error
	return items, err
}
