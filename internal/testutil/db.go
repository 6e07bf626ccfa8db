// Package testutil builds in-memory databases and fixtures for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

var schema = []string{
	`CREATE TABLE products (
		id BIGINT PRIMARY KEY,
		seller_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		product_type TEXT NOT NULL,
		delivery_type TEXT NOT NULL,
		price NUMERIC NOT NULL,
		duration_days INTEGER NOT NULL DEFAULT 0,
		sold_count INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		deleted_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE seller_profiles (
		user_id BIGINT PRIMARY KEY,
		total_sales INTEGER NOT NULL DEFAULT 0,
		total_earnings NUMERIC NOT NULL DEFAULT 0,
		available_balance NUMERIC NOT NULL DEFAULT 0,
		total_withdrawn NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE product_codes (
		id BIGINT PRIMARY KEY,
		product_id BIGINT NOT NULL,
		code TEXT NOT NULL,
		status TEXT NOT NULL,
		buyer_id BIGINT,
		order_id BIGINT,
		order_item_id BIGINT,
		sold_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_product_codes_product_code ON product_codes(product_id, code)`,
	`CREATE TABLE product_accounts (
		id BIGINT PRIMARY KEY,
		product_id BIGINT NOT NULL,
		email TEXT NOT NULL,
		sealed_password TEXT NOT NULL,
		max_profiles INTEGER NOT NULL DEFAULT 1,
		sold_profiles INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE account_profile_sales (
		id BIGINT PRIMARY KEY,
		account_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL,
		order_id BIGINT NOT NULL,
		order_item_id BIGINT NOT NULL,
		buyer_id BIGINT NOT NULL,
		profile_no INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_account_profile_sales_slot ON account_profile_sales(account_id, profile_no)`,
	`CREATE TABLE wallets (
		user_id BIGINT PRIMARY KEY,
		balance NUMERIC NOT NULL DEFAULT 0,
		version BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE wallet_transactions (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		type TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		balance_after NUMERIC NOT NULL,
		order_id BIGINT,
		refund_id BIGINT,
		deposit_id BIGINT,
		description TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE wallet_deposits (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		memo_token TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		coin TEXT NOT NULL,
		network TEXT NOT NULL,
		address TEXT NOT NULL,
		sandbox BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		credited_amount NUMERIC,
		tx_id TEXT,
		completed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_wallet_deposits_memo ON wallet_deposits(memo_token)`,
	`CREATE UNIQUE INDEX ux_wallet_deposits_pending_user ON wallet_deposits(user_id) WHERE status = 'PENDING'`,
	`CREATE TABLE orders (
		id BIGINT PRIMARY KEY,
		checkout_group_id BIGINT NOT NULL,
		buyer_id BIGINT NOT NULL,
		seller_id BIGINT NOT NULL,
		subtotal NUMERIC NOT NULL,
		service_fee NUMERIC NOT NULL,
		total NUMERIC NOT NULL,
		commission_rate NUMERIC NOT NULL,
		commission_amount NUMERIC NOT NULL,
		seller_earnings NUMERIC NOT NULL,
		payment_method TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		status TEXT NOT NULL,
		is_high_value BOOLEAN NOT NULL DEFAULT FALSE,
		requires_manual_review BOOLEAN NOT NULL DEFAULT FALSE,
		delivery_scheduled_at DATETIME,
		expires_at DATETIME,
		paid_at DATETIME,
		fulfilled_at DATETIME,
		completed_at DATETIME,
		cancelled_at DATETIME,
		cancel_reason TEXT,
		refunded_amount NUMERIC NOT NULL DEFAULT 0,
		reviewed_by BIGINT,
		reviewed_at DATETIME,
		review_note TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE order_items (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL,
		product_name TEXT NOT NULL,
		product_type TEXT NOT NULL,
		delivery_type TEXT NOT NULL,
		unit_price NUMERIC NOT NULL,
		quantity INTEGER NOT NULL,
		total NUMERIC NOT NULL,
		duration_days INTEGER NOT NULL DEFAULT 0,
		is_delivered BOOLEAN NOT NULL DEFAULT FALSE,
		delivered_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payments (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		checkout_group_id BIGINT NOT NULL,
		method TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		status TEXT NOT NULL,
		external_id TEXT,
		memo_token TEXT,
		details TEXT,
		sandbox BOOLEAN NOT NULL DEFAULT FALSE,
		paid_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payments_order ON payments(order_id)`,
	`CREATE TABLE payment_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		reference TEXT,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payment_events_provider_event ON payment_events(provider, provider_event_id)`,
	`CREATE TABLE refund_requests (
		id BIGINT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		buyer_id BIGINT NOT NULL,
		seller_id BIGINT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		original_amount NUMERIC NOT NULL,
		refund_amount NUMERIC NOT NULL,
		seller_debit NUMERIC NOT NULL,
		used_days INTEGER NOT NULL,
		remaining_days INTEGER NOT NULL,
		total_days INTEGER NOT NULL,
		reason TEXT,
		processed_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_refund_requests_order ON refund_requests(order_id)`,
	`CREATE TABLE conversations (
		id BIGINT PRIMARY KEY,
		buyer_id BIGINT NOT NULL,
		seller_id BIGINT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_conversations_pair ON conversations(buyer_id, seller_id)`,
	`CREATE TABLE messages (
		id BIGINT PRIMARY KEY,
		conversation_id BIGINT NOT NULL,
		sender_id BIGINT NOT NULL,
		body TEXT NOT NULL,
		is_system BOOLEAN NOT NULL DEFAULT FALSE,
		order_id BIGINT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE users (
		id BIGINT PRIMARY KEY,
		email TEXT NOT NULL,
		display_name TEXT
	)`,
	`CREATE TABLE notifications (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		payload TEXT,
		read_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE audit_logs (
		id BIGINT PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT,
		ip_address TEXT,
		user_agent TEXT,
		created_at DATETIME NOT NULL
	)`,
}

// NewDB opens a private in-memory database with the full schema. A single
// connection keeps transactions and plain queries on the same handle.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:digimart_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

// Node returns a snowflake node for ID generation in tests.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// D parses a decimal literal and panics on malformed input.
func D(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// DecimalEqual compares amounts at cent precision, absorbing REAL storage drift.
func DecimalEqual(t testing.TB, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	expected := D(want)
	if !got.Round(2).Equal(expected.Round(2)) {
		t.Errorf("decimal mismatch: want %s, got %s %v", expected.StringFixed(2), got.String(), msgAndArgs)
	}
}
