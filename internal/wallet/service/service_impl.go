package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/digimart/internal/clock"
	obsmetrics "github.com/smallbiznis/digimart/internal/observability/metrics"
	"github.com/smallbiznis/digimart/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxAttempts bounds the optimistic retry loop when concurrent writers bump the version.
const maxAttempts = 5

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("wallet.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Credit(ctx context.Context, req domain.EntryRequest) (domain.EntryResult, error) {
	var result domain.EntryResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.CreditTx(ctx, tx, req)
		return err
	})
	return result, err
}

func (s *Service) Debit(ctx context.Context, req domain.EntryRequest) (domain.EntryResult, error) {
	var result domain.EntryResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.DebitTx(ctx, tx, req)
		return err
	})
	return result, err
}

func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, req domain.EntryRequest) (domain.EntryResult, error) {
	if !req.Type.IsCredit() {
		return domain.EntryResult{}, domain.ErrInvalidTransactionType
	}
	return s.apply(ctx, tx, req, req.Amount)
}

func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, req domain.EntryRequest) (domain.EntryResult, error) {
	if !req.Type.IsDebit() {
		return domain.EntryResult{}, domain.ErrInvalidTransactionType
	}
	return s.apply(ctx, tx, req, req.Amount.Neg())
}

// apply moves the balance by delta and appends the log line in the same transaction.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, req domain.EntryRequest, delta decimal.Decimal) (domain.EntryResult, error) {
	if req.UserID == 0 {
		return domain.EntryResult{}, domain.ErrInvalidUser
	}
	if !req.Amount.IsPositive() {
		return domain.EntryResult{}, domain.ErrInvalidAmount
	}
	delta = delta.Round(2)
	now := s.clock.Now()

	if delta.IsPositive() {
		if err := s.repo.EnsureWallet(ctx, tx, req.UserID, now); err != nil {
			return domain.EntryResult{}, err
		}
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		wallet, err := s.repo.Get(ctx, tx, req.UserID)
		if err != nil {
			return domain.EntryResult{}, err
		}
		if wallet == nil {
			return domain.EntryResult{}, domain.ErrInsufficientFunds
		}

		next := wallet.Balance.Add(delta)
		if next.IsNegative() {
			return domain.EntryResult{}, domain.ErrInsufficientFunds
		}

		swapped, err := s.repo.CompareAndSwap(ctx, tx, req.UserID, wallet.Version, next, now)
		if err != nil {
			return domain.EntryResult{}, err
		}
		if !swapped {
			s.log.Debug("wallet version moved, retrying",
				zap.String("user_id", req.UserID.String()),
				zap.Int64("version", wallet.Version),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		entry := domain.Transaction{
			ID:           s.genID.Generate(),
			UserID:       req.UserID,
			Type:         req.Type,
			Amount:       delta,
			BalanceAfter: next,
			OrderID:      req.OrderID,
			RefundID:     req.RefundID,
			DepositID:    req.DepositID,
			Description:  req.Description,
			CreatedAt:    now,
		}
		if err := s.repo.InsertTransaction(ctx, tx, &entry); err != nil {
			return domain.EntryResult{}, err
		}

		if s.obsMetrics != nil {
			s.obsMetrics.RecordWalletTransaction(ctx, string(req.Type))
		}
		return domain.EntryResult{TransactionID: entry.ID, Balance: next}, nil
	}

	return domain.EntryResult{}, fmt.Errorf("%w: user %s", domain.ErrConcurrentUpdate, req.UserID)
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (decimal.Decimal, error) {
	wallet, err := s.repo.Get(ctx, s.db, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if wallet == nil {
		return decimal.Zero, nil
	}
	return wallet.Balance, nil
}

func (s *Service) Transactions(ctx context.Context, userID snowflake.ID, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListTransactions(ctx, s.db, userID, limit)
}

// Replay folds the transaction log and checks it against the stored balance.
func (s *Service) Replay(ctx context.Context, userID snowflake.ID) (domain.ReplayResult, error) {
	result := domain.ReplayResult{UserID: userID}

	stored, err := s.Balance(ctx, userID)
	if err != nil {
		return result, err
	}
	entries, err := s.repo.ListAllTransactions(ctx, s.db, userID)
	if err != nil {
		return result, err
	}

	replayed := decimal.Zero
	for _, entry := range entries {
		replayed = replayed.Add(entry.Amount)
		if !replayed.Round(2).Equal(entry.BalanceAfter.Round(2)) {
			s.log.Error("wallet log snapshot mismatch",
				zap.String("user_id", userID.String()),
				zap.String("transaction_id", entry.ID.String()),
				zap.String("replayed", replayed.StringFixed(2)),
				zap.String("balance_after", entry.BalanceAfter.StringFixed(2)),
			)
		}
	}

	result.Stored = stored
	result.Replayed = replayed
	result.Entries = len(entries)
	result.Consistent = stored.Round(2).Equal(replayed.Round(2))
	return result, nil
}
