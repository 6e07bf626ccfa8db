package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var item domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, seller_id, name, product_type, delivery_type, price, duration_days,
			sold_count, is_active, deleted_at, created_at, updated_at
		 FROM products
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

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, seller_id, name, product_type, delivery_type, price, duration_days,
			sold_count, is_active, deleted_at, created_at, updated_at
		 FROM products
		 WHERE id IN ?
		 ORDER BY id ASC`,
		ids,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) IncrementSold(ctx context.Context, db *gorm.DB, productID snowflake.ID, qty int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE products SET sold_count = sold_count + ? WHERE id = ?`,
		qty,
		productID,
	).Error
}

func (r *repo) DecrementSold(ctx context.Context, db *gorm.DB, productID snowflake.ID, qty int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE products
		 SET sold_count = CASE WHEN sold_count >= ? THEN sold_count - ? ELSE 0 END
		 WHERE id = ?`,
		qty,
		qty,
		productID,
	).Error
}
