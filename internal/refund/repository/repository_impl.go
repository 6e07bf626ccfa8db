package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/refund/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, req *domain.RefundRequest) error {
	return db.WithContext(ctx).Create(req).Error
}

func (r *repo) FindActiveByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.RefundRequest, error) {
	var item domain.RefundRequest
	err := db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, []domain.Status{domain.StatusPending, domain.StatusProcessed}).
		Limit(1).
		Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
