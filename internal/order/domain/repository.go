package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Transition describes a compare-and-swap status change. The update applies
// only while the row is still in one of From.
type Transition struct {
	From   []Status
	To     Status
	Fields map[string]any
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	InsertItems(ctx context.Context, db *gorm.DB, items []OrderItem) error
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	DeleteOrders(ctx context.Context, db *gorm.DB, ids []snowflake.ID) error

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	// FindForUpdate reads the live row with a row lock where the dialect supports it.
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderItem, error)
	ListByGroup(ctx context.Context, db *gorm.DB, groupID snowflake.ID) ([]Order, error)
	FindPayment(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Payment, error)
	ListPaymentsByGroup(ctx context.Context, db *gorm.DB, groupID snowflake.ID) ([]Payment, error)
	FindGroupByExternalID(ctx context.Context, db *gorm.DB, externalID string) (snowflake.ID, error)

	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, t Transition) (bool, error)
	UpdatePayment(ctx context.Context, db *gorm.DB, orderID snowflake.ID, from []PaymentStatus, fields map[string]any) (bool, error)
	UpdateGroupPaymentDetails(ctx context.Context, db *gorm.DB, groupID snowflake.ID, fields map[string]any) error
	UpdateGroupOrders(ctx context.Context, db *gorm.DB, groupID snowflake.ID, fields map[string]any) error
	MarkItemDelivered(ctx context.Context, db *gorm.DB, itemID snowflake.ID, at time.Time) error

	CountRecentByBuyer(ctx context.Context, db *gorm.DB, buyerID snowflake.ID, since time.Time) (int64, error)
	ListDeferredDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Order, error)
	ListExpiredPending(ctx context.Context, db *gorm.DB, methods []PaymentMethod, now time.Time, limit int) ([]Order, error)
	ListPendingCrypto(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]PendingPayment, error)
}
