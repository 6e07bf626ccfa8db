package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/messaging/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultMessageLimit = 100

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("messaging.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// EnsureConversation returns the buyer/seller conversation, creating it on first use.
func (s *Service) EnsureConversation(ctx context.Context, tx *gorm.DB, buyerID, sellerID snowflake.ID) (*domain.Conversation, error) {
	if buyerID == 0 || sellerID == 0 || buyerID == sellerID {
		return nil, domain.ErrInvalidParticipants
	}
	db := s.conn(tx)

	existing, err := s.repo.FindConversation(ctx, db, buyerID, sellerID)
	if err != nil || existing != nil {
		return existing, err
	}

	now := s.clock.Now()
	if err := s.repo.InsertConversation(ctx, db, &domain.Conversation{
		ID:        s.genID.Generate(),
		BuyerID:   buyerID,
		SellerID:  sellerID,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, err
	}
	return s.repo.FindConversation(ctx, db, buyerID, sellerID)
}

func (s *Service) PostSystemMessage(ctx context.Context, tx *gorm.DB, msg domain.SystemMessage) (*domain.Message, error) {
	conv, err := s.EnsureConversation(ctx, tx, msg.BuyerID, msg.SellerID)
	if err != nil {
		return nil, err
	}
	db := s.conn(tx)

	now := s.clock.Now()
	out := &domain.Message{
		ID:             s.genID.Generate(),
		ConversationID: conv.ID,
		SenderID:       msg.SellerID,
		Body:           strings.TrimSpace(msg.Body),
		IsSystem:       true,
		CreatedAt:      now,
	}
	if msg.OrderID != 0 {
		orderID := msg.OrderID
		out.OrderID = &orderID
	}
	if err := s.repo.InsertMessage(ctx, db, out); err != nil {
		return nil, err
	}
	if err := s.repo.TouchConversation(ctx, db, conv.ID, now); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Messages(ctx context.Context, conversationID snowflake.ID, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > defaultMessageLimit {
		limit = defaultMessageLimit
	}
	return s.repo.ListMessages(ctx, s.db, conversationID, limit)
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
