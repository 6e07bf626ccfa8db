package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) DeleteOrders(ctx context.Context, db *gorm.DB, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := db.WithContext(ctx).Exec(`DELETE FROM order_items WHERE order_id IN ?`, ids).Error; err != nil {
		return err
	}
	if err := db.WithContext(ctx).Exec(`DELETE FROM payments WHERE order_id IN ?`, ids).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(`DELETE FROM orders WHERE id IN ?`, ids).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
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

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderItem, error) {
	var items []domain.OrderItem
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) ListByGroup(ctx context.Context, db *gorm.DB, groupID snowflake.ID) ([]domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).
		Where("checkout_group_id = ?", groupID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Where("order_id = ?", orderID).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListPaymentsByGroup(ctx context.Context, db *gorm.DB, groupID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := db.WithContext(ctx).
		Where("checkout_group_id = ?", groupID).
		Order("order_id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) FindGroupByExternalID(ctx context.Context, db *gorm.DB, externalID string) (snowflake.ID, error) {
	var groupID snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT checkout_group_id FROM payments WHERE external_id = ? LIMIT 1`,
		externalID,
	).Scan(&groupID).Error
	return groupID, err
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, t domain.Transition) (bool, error) {
	fields := make(map[string]any, len(t.Fields)+2)
	for k, v := range t.Fields {
		fields[k] = v
	}
	fields["status"] = t.To
	if _, ok := fields["updated_at"]; !ok {
		fields["updated_at"] = time.Now().UTC()
	}

	res := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ? AND status IN ?", id, t.From).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) UpdatePayment(ctx context.Context, db *gorm.DB, orderID snowflake.ID, from []domain.PaymentStatus, fields map[string]any) (bool, error) {
	stmt := db.WithContext(ctx).Model(&domain.Payment{}).Where("order_id = ?", orderID)
	if len(from) > 0 {
		stmt = stmt.Where("status IN ?", from)
	}
	res := stmt.Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateGroupPaymentDetails(ctx context.Context, db *gorm.DB, groupID snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("checkout_group_id = ?", groupID).
		Updates(fields).Error
}

func (r *repo) UpdateGroupOrders(ctx context.Context, db *gorm.DB, groupID snowflake.ID, fields map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("checkout_group_id = ?", groupID).
		Updates(fields).Error
}

func (r *repo) MarkItemDelivered(ctx context.Context, db *gorm.DB, itemID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE order_items SET is_delivered = ?, delivered_at = ? WHERE id = ?`,
		true,
		at,
		itemID,
	).Error
}

func (r *repo) CountRecentByBuyer(ctx context.Context, db *gorm.DB, buyerID snowflake.ID, since time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM orders WHERE buyer_id = ? AND created_at >= ?`,
		buyerID,
		since,
	).Scan(&count).Error
	return count, err
}

func (r *repo) ListDeferredDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).
		Where("status IN ? AND payment_status = ?", []domain.Status{domain.StatusPending, domain.StatusProcessing}, domain.PaymentStatusCompleted).
		Where("(delivery_scheduled_at IS NULL OR delivery_scheduled_at <= ?)", now).
		Order("delivery_scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repo) ListExpiredPending(ctx context.Context, db *gorm.DB, methods []domain.PaymentMethod, now time.Time, limit int) ([]domain.Order, error) {
	var items []domain.Order
	err := db.WithContext(ctx).
		Where("status = ? AND payment_status = ?", domain.StatusPending, domain.PaymentStatusPending).
		Where("payment_method IN ?", methods).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Order("expires_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repo) ListPendingCrypto(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.PendingPayment, error) {
	var items []domain.PendingPayment
	err := db.WithContext(ctx).Raw(
		`SELECT o.id AS order_id, o.checkout_group_id, o.buyer_id, p.amount, p.memo_token,
			p.details, o.expires_at
		 FROM payments p
		 JOIN orders o ON o.id = p.order_id
		 WHERE p.method = ? AND p.status = ? AND p.sandbox = ?
			AND o.status = ? AND p.memo_token IS NOT NULL
			AND (o.expires_at IS NULL OR o.expires_at > ?)
		 ORDER BY o.created_at ASC, o.id ASC
		 LIMIT ?`,
		domain.PaymentMethodCryptoTransfer,
		domain.PaymentStatusPending,
		false,
		domain.StatusPending,
		now,
		limit,
	).Scan(&items).Error
	return items, err
}
