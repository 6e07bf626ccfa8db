package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	"github.com/smallbiznis/digimart/internal/memo"
	"github.com/smallbiznis/digimart/internal/wallet/domain"
	pkgdb "github.com/smallbiznis/digimart/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type DepositParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Platform config.PlatformSource
	Repo     domain.Repository
	Ledger   domain.Service
	Memo     *memo.Issuer
}

type DepositService struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	platform config.PlatformSource
	repo     domain.Repository
	ledger   domain.Service
	memo     *memo.Issuer
}

func NewDepositService(p DepositParams) domain.DepositService {
	return &DepositService{
		db:       p.DB,
		log:      p.Log.Named("wallet.deposit"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		platform: p.Platform,
		repo:     p.Repo,
		ledger:   p.Ledger,
		memo:     p.Memo,
	}
}

func (s *DepositService) CreateDeposit(ctx context.Context, req domain.CreateDepositRequest) (domain.DepositView, error) {
	if req.UserID == 0 {
		return domain.DepositView{}, domain.ErrInvalidUser
	}
	if !req.Amount.IsPositive() {
		return domain.DepositView{}, domain.ErrInvalidAmount
	}

	policy := s.platform.Get().Deposits
	if req.Amount.LessThan(policy.Minimum()) {
		return domain.DepositView{}, domain.ErrDepositBelowMinimum
	}

	coin := strings.ToUpper(strings.TrimSpace(req.Coin))
	network := strings.ToUpper(strings.TrimSpace(req.Network))
	if coin == "" && network == "" {
		asset := policy.DefaultAsset()
		coin, network = strings.ToUpper(asset.Coin), strings.ToUpper(asset.Network)
	}
	if !policy.Supports(coin, network) {
		return domain.DepositView{}, domain.ErrUnsupportedAsset
	}

	sandbox := !s.cfg.Providers.CryptoConfigured()
	address, ok := s.cfg.Providers.CryptoAddress(coin, network)
	if !ok {
		if !sandbox {
			return domain.DepositView{}, domain.ErrUnsupportedAsset
		}
		address = fmt.Sprintf("SANDBOX-%s-%s", coin, network)
	}

	now := s.clock.Now()
	userID := req.UserID
	if _, err := s.repo.ExpireDueDeposits(ctx, s.db, &userID, now); err != nil {
		return domain.DepositView{}, err
	}

	inflight, err := s.repo.FindPendingDepositByUser(ctx, s.db, req.UserID)
	if err != nil {
		return domain.DepositView{}, err
	}
	if inflight != nil {
		return domain.DepositView{}, domain.ErrDepositInFlight
	}

	token, err := s.memo.Issue(ctx)
	if err != nil {
		return domain.DepositView{}, err
	}

	deposit := domain.Deposit{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		MemoToken: token,
		Amount:    req.Amount,
		Coin:      coin,
		Network:   network,
		Address:   address,
		Sandbox:   sandbox,
		Status:    domain.DepositStatusPending,
		ExpiresAt: now.Add(policy.Expiry()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertDeposit(ctx, s.db, &deposit); err != nil {
		// The partial unique index on pending deposits catches a concurrent create.
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.DepositView{}, domain.ErrDepositInFlight
		}
		return domain.DepositView{}, err
	}

	s.log.Info("deposit created",
		zap.String("deposit_id", deposit.ID.String()),
		zap.String("user_id", deposit.UserID.String()),
		zap.String("coin", coin),
		zap.String("network", network),
		zap.Bool("sandbox", sandbox),
	)
	return toView(deposit), nil
}

// DepositStatus reports a deposit owned by userID. Sandbox deposits settle on
// the first poll and overdue ones are expired on the spot.
func (s *DepositService) DepositStatus(ctx context.Context, userID, depositID snowflake.ID) (domain.DepositView, error) {
	deposit, err := s.repo.FindDeposit(ctx, s.db, depositID)
	if err != nil {
		return domain.DepositView{}, err
	}
	if deposit == nil || deposit.UserID != userID {
		return domain.DepositView{}, domain.ErrDepositNotFound
	}

	if deposit.Status == domain.DepositStatusPending {
		now := s.clock.Now()
		switch {
		case !now.Before(deposit.ExpiresAt):
			if _, err := s.repo.ExpireDeposit(ctx, s.db, deposit.ID, now); err != nil {
				return domain.DepositView{}, err
			}
		case deposit.Sandbox:
			err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				_, err := s.CompleteDeposit(ctx, tx, deposit.ID, deposit.Amount, "sandbox-"+deposit.ID.String())
				return err
			})
			if err != nil {
				return domain.DepositView{}, err
			}
		}
		deposit, err = s.repo.FindDeposit(ctx, s.db, depositID)
		if err != nil {
			return domain.DepositView{}, err
		}
	}

	view := toView(*deposit)
	if deposit.Status == domain.DepositStatusCompleted {
		balance, err := s.ledger.Balance(ctx, userID)
		if err != nil {
			return domain.DepositView{}, err
		}
		view.NewBalance = &balance
	}
	return view, nil
}

func (s *DepositService) CompleteDeposit(ctx context.Context, tx *gorm.DB, depositID snowflake.ID, amount decimal.Decimal, txID string) (bool, error) {
	deposit, err := s.repo.FindDeposit(ctx, tx, depositID)
	if err != nil {
		return false, err
	}
	if deposit == nil {
		return false, domain.ErrDepositNotFound
	}

	now := s.clock.Now()
	swapped, err := s.repo.CompleteDeposit(ctx, tx, depositID, amount, txID, now)
	if err != nil {
		return false, err
	}
	if !swapped {
		s.log.Info("deposit already settled",
			zap.String("deposit_id", depositID.String()),
			zap.String("tx_id", txID),
		)
		return false, nil
	}

	id := deposit.ID
	if _, err := s.ledger.CreditTx(ctx, tx, domain.EntryRequest{
		UserID:      deposit.UserID,
		Type:        domain.TransactionDepositCredit,
		Amount:      amount.Round(2),
		DepositID:   &id,
		Description: fmt.Sprintf("Deposit %s %s (%s)", deposit.Coin, deposit.Network, txID),
	}); err != nil {
		return false, err
	}

	s.log.Info("deposit completed",
		zap.String("deposit_id", depositID.String()),
		zap.String("user_id", deposit.UserID.String()),
		zap.String("amount", amount.String()),
		zap.String("tx_id", txID),
	)
	return true, nil
}

func (s *DepositService) ExpireDue(ctx context.Context) (int64, error) {
	return s.repo.ExpireDueDeposits(ctx, s.db, nil, s.clock.Now())
}

func (s *DepositService) ListPending(ctx context.Context, limit int) ([]domain.Deposit, error) {
	if limit <= 0 {
		limit = s.platform.Get().Reconciliation.BatchSize
	}
	return s.repo.ListPendingDeposits(ctx, s.db, s.clock.Now(), limit)
}

func (s *DepositService) Get(ctx context.Context, depositID snowflake.ID) (*domain.Deposit, error) {
	return s.repo.FindDeposit(ctx, s.db, depositID)
}

func toView(d domain.Deposit) domain.DepositView {
	return domain.DepositView{
		ID:             d.ID,
		Status:         d.ViewStatus(),
		Amount:         d.Amount,
		Coin:           d.Coin,
		Network:        d.Network,
		Address:        d.Address,
		MemoToken:      d.MemoToken,
		ExpiresAt:      d.ExpiresAt,
		Sandbox:        d.Sandbox,
		CreditedAmount: d.CreditedAmount,
	}
}
