package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/messaging/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertConversation is a no-op when the buyer/seller pair already has one.
func (r *repo) InsertConversation(ctx context.Context, db *gorm.DB, conv *domain.Conversation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO conversations (id, buyer_id, seller_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (buyer_id, seller_id) DO NOTHING`,
		conv.ID,
		conv.BuyerID,
		conv.SellerID,
		conv.CreatedAt,
		conv.UpdatedAt,
	).Error
}

func (r *repo) FindConversation(ctx context.Context, db *gorm.DB, buyerID, sellerID snowflake.ID) (*domain.Conversation, error) {
	var item domain.Conversation
	err := db.WithContext(ctx).Raw(
		`SELECT id, buyer_id, seller_id, created_at, updated_at
		 FROM conversations
		 WHERE buyer_id = ? AND seller_id = ?
		 LIMIT 1`,
		buyerID,
		sellerID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) TouchConversation(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		at,
		id,
	).Error
}

func (r *repo) InsertMessage(ctx context.Context, db *gorm.DB, msg *domain.Message) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO messages (id, conversation_id, sender_id, body, is_system, order_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Body,
		msg.IsSystem,
		msg.OrderID,
		msg.CreatedAt,
	).Error
}

func (r *repo) ListMessages(ctx context.Context, db *gorm.DB, conversationID snowflake.ID, limit int) ([]domain.Message, error) {
	var items []domain.Message
	err := db.WithContext(ctx).Raw(
		`SELECT id, conversation_id, sender_id, body, is_system, order_id, created_at
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		conversationID,
		limit,
	).Scan(&items).Error
	return items, err
}
