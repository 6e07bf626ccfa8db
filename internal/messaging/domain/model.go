package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrInvalidParticipants = errors.New("invalid_conversation_participants")

// Conversation is the single thread between a buyer and a seller.
type Conversation struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	BuyerID   snowflake.ID `json:"buyer_id" gorm:"not null"`
	SellerID  snowflake.ID `json:"seller_id" gorm:"not null"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

type Message struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	ConversationID snowflake.ID  `json:"conversation_id" gorm:"not null;index"`
	SenderID       snowflake.ID  `json:"sender_id" gorm:"not null"`
	Body           string        `json:"body" gorm:"type:text;not null"`
	IsSystem       bool          `json:"is_system"`
	OrderID        *snowflake.ID `json:"order_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// SystemMessage is an automated note posted on behalf of the seller.
type SystemMessage struct {
	BuyerID  snowflake.ID
	SellerID snowflake.ID
	OrderID  snowflake.ID
	Body     string
}

type Repository interface {
	InsertConversation(ctx context.Context, db *gorm.DB, conv *Conversation) error
	FindConversation(ctx context.Context, db *gorm.DB, buyerID, sellerID snowflake.ID) (*Conversation, error)
	TouchConversation(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	InsertMessage(ctx context.Context, db *gorm.DB, msg *Message) error
	ListMessages(ctx context.Context, db *gorm.DB, conversationID snowflake.ID, limit int) ([]Message, error)
}

type Service interface {
	EnsureConversation(ctx context.Context, tx *gorm.DB, buyerID, sellerID snowflake.ID) (*Conversation, error)
	PostSystemMessage(ctx context.Context, tx *gorm.DB, msg SystemMessage) (*Message, error)
	Messages(ctx context.Context, conversationID snowflake.ID, limit int) ([]Message, error)
}
