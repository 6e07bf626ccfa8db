package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	fulfillmentdomain "github.com/smallbiznis/digimart/internal/fulfillment/domain"
	notificationdomain "github.com/smallbiznis/digimart/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/digimart/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
	"github.com/smallbiznis/digimart/internal/reconciliation/domain"
	walletdomain "github.com/smallbiznis/digimart/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Platform      config.PlatformSource
	Ledger        paymentdomain.ExternalLedger
	Orders        orderdomain.Repository
	Deposits      walletdomain.DepositService
	Fulfillment   fulfillmentdomain.Service
	Notifications notificationdomain.Service
	Limiter       domain.Limiter      `optional:"true"`
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	platform      config.PlatformSource
	ledger        paymentdomain.ExternalLedger
	orders        orderdomain.Repository
	deposits      walletdomain.DepositService
	fulfillment   fulfillmentdomain.Service
	notifications notificationdomain.Service
	limiter       domain.Limiter
	metrics       *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("reconciliation.service"),
		clock:         p.Clock,
		platform:      p.Platform,
		ledger:        p.Ledger,
		orders:        p.Orders,
		deposits:      p.Deposits,
		fulfillment:   p.Fulfillment,
		notifications: p.Notifications,
		limiter:       p.Limiter,
		metrics:       p.Metrics,
	}
}

// Run expires overdue crypto obligations, then matches the remaining ones
// against the exchange deposit history and settles every match.
func (s *Service) Run(ctx context.Context) (domain.Report, error) {
	var report domain.Report
	policy := s.platform.Get().Reconciliation
	now := s.clock.Now()

	expired, err := s.expireOrders(ctx, policy.BatchSize)
	if err != nil {
		return report, err
	}
	deposits, err := s.deposits.ExpireDue(ctx)
	if err != nil {
		return report, err
	}
	report.Expired = expired + int(deposits)

	pending, err := s.loadPending(ctx, policy.BatchSize)
	if err != nil {
		return report, err
	}
	report.Pending = len(pending)
	if len(pending) == 0 {
		return report, nil
	}

	records, queries, err := s.history(ctx, pending, now.Add(-policy.Lookback()), now)
	report.Queries = queries
	if err != nil {
		return report, err
	}

	for _, m := range Match(pending, records, policy.Tolerance()) {
		report.Matched++
		credited, fulfilled, err := s.apply(ctx, m)
		if err != nil {
			s.log.Error("apply reconciliation match",
				zap.String("source", string(m.Pending.Source)),
				zap.String("ref", m.Pending.Ref.String()),
				zap.String("tx_id", m.Record.TxID),
				zap.Error(err),
			)
			continue
		}
		if credited {
			report.Credited++
		}
		report.Fulfilled += fulfilled
	}

	s.log.Info("reconciliation cycle finished",
		zap.Int("expired", report.Expired),
		zap.Int("pending", report.Pending),
		zap.Int("queries", report.Queries),
		zap.Int("matched", report.Matched),
		zap.Int("credited", report.Credited),
		zap.Int("fulfilled", report.Fulfilled),
	)
	return report, nil
}

func (s *Service) expireOrders(ctx context.Context, limit int) (int, error) {
	orders, err := s.orders.ListExpiredPending(ctx, s.db, []orderdomain.PaymentMethod{orderdomain.PaymentMethodCryptoTransfer}, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, order := range orders {
		ok, err := s.fulfillment.ExpireOrder(ctx, order.ID, fulfillmentdomain.CancelReasonPaymentExpired)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func (s *Service) loadPending(ctx context.Context, limit int) ([]domain.Pending, error) {
	payments, err := s.orders.ListPendingCrypto(ctx, s.db, s.clock.Now(), limit)
	if err != nil {
		return nil, err
	}
	out := groupPayments(s.log, payments)

	deposits, err := s.deposits.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, d := range deposits {
		out = append(out, domain.Pending{
			Source: domain.SourceDeposit,
			Ref:    d.ID,
			Memo:   d.MemoToken,
			Amount: d.Amount,
			Coin:   strings.ToUpper(d.Coin),
		})
	}
	return out, nil
}

// groupPayments collapses per-order payments into one obligation per checkout
// group. The expected amount is the grand total quoted to the buyer.
func groupPayments(log *zap.Logger, payments []orderdomain.PendingPayment) []domain.Pending {
	index := map[snowflake.ID]int{}
	var out []domain.Pending
	for _, p := range payments {
		if i, ok := index[p.CheckoutGroupID]; ok {
			if out[i].Coin == "" {
				out[i].Amount = out[i].Amount.Add(p.Amount)
			}
			continue
		}
		item := domain.Pending{
			Source: domain.SourcePayment,
			Ref:    p.CheckoutGroupID,
			Memo:   p.MemoToken,
			Amount: p.Amount,
		}
		details, err := orderdomain.DecodeDetails(p.Details)
		if err != nil {
			log.Warn("undecodable crypto payment details",
				zap.String("order_id", p.OrderID.String()),
				zap.Error(err),
			)
		}
		if crypto, ok := details.(orderdomain.CryptoTransferDetails); ok {
			item.Amount = crypto.Amount
			item.Coin = strings.ToUpper(crypto.Coin)
		}
		index[p.CheckoutGroupID] = len(out)
		out = append(out, item)
	}
	return out
}

// history issues one exchange query per distinct coin.
func (s *Service) history(ctx context.Context, pending []domain.Pending, start, end time.Time) ([]paymentdomain.DepositRecord, int, error) {
	coins := map[string]struct{}{}
	for _, p := range pending {
		coin := p.Coin
		if coin == "" {
			coin = s.platform.Get().Deposits.DefaultAsset().Coin
		}
		coins[strings.ToUpper(coin)] = struct{}{}
	}
	ordered := make([]string, 0, len(coins))
	for coin := range coins {
		ordered = append(ordered, coin)
	}
	sort.Strings(ordered)

	var records []paymentdomain.DepositRecord
	for i, coin := range ordered {
		batch, err := s.ledger.DepositHistory(ctx, coin, start, end)
		if err != nil {
			return records, i + 1, err
		}
		records = append(records, batch...)
	}
	return records, len(ordered), nil
}

func (s *Service) apply(ctx context.Context, m domain.Match) (bool, int, error) {
	switch m.Pending.Source {
	case domain.SourceDeposit:
		var credited bool
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ok, err := s.deposits.CompleteDeposit(ctx, tx, m.Pending.Ref, m.Record.Amount, m.Record.TxID)
			credited = ok
			return err
		})
		if err != nil {
			return false, 0, err
		}
		if credited {
			s.metrics.RecordReconciliationMatch(ctx, string(domain.SourceDeposit))
			if deposit, err := s.deposits.Get(ctx, m.Pending.Ref); err == nil && deposit != nil {
				s.notifications.DepositCompleted(ctx, deposit.UserID, deposit.ID, m.Record.Amount.Round(2))
			}
		}
		return credited, 0, nil
	default:
		results, err := s.fulfillment.FulfillGroup(ctx, m.Pending.Ref, m.Record.TxID)
		if err != nil {
			return false, 0, err
		}
		fulfilled := 0
		for _, r := range results {
			if !r.AlreadyFinal {
				fulfilled++
			}
		}
		if fulfilled > 0 {
			s.metrics.RecordReconciliationMatch(ctx, string(domain.SourcePayment))
		}
		return false, fulfilled, nil
	}
}

// VerifyDeposit runs a targeted match for one deposit before reporting it.
func (s *Service) VerifyDeposit(ctx context.Context, userID, depositID snowflake.ID) (walletdomain.DepositView, error) {
	if err := s.allow(ctx, userID); err != nil {
		return walletdomain.DepositView{}, err
	}
	deposit, err := s.deposits.Get(ctx, depositID)
	if err != nil {
		return walletdomain.DepositView{}, err
	}
	if deposit == nil || deposit.UserID != userID {
		return walletdomain.DepositView{}, walletdomain.ErrDepositNotFound
	}

	now := s.clock.Now()
	if deposit.Status == walletdomain.DepositStatusPending && !deposit.Sandbox && now.Before(deposit.ExpiresAt) {
		item := domain.Pending{
			Source: domain.SourceDeposit,
			Ref:    deposit.ID,
			Memo:   deposit.MemoToken,
			Amount: deposit.Amount,
			Coin:   strings.ToUpper(deposit.Coin),
		}
		if err := s.verify(ctx, item, deposit.CreatedAt); err != nil {
			return walletdomain.DepositView{}, err
		}
	}
	return s.deposits.DepositStatus(ctx, userID, depositID)
}

// VerifyPayment runs a targeted match for the checkout group of one crypto order.
func (s *Service) VerifyPayment(ctx context.Context, buyerID, orderID snowflake.ID) (domain.PaymentStatus, error) {
	if err := s.allow(ctx, buyerID); err != nil {
		return domain.PaymentStatus{}, err
	}
	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return domain.PaymentStatus{}, err
	}
	if order == nil || order.BuyerID != buyerID {
		return domain.PaymentStatus{}, orderdomain.ErrOrderNotFound
	}
	payment, err := s.orders.FindPayment(ctx, s.db, orderID)
	if err != nil {
		return domain.PaymentStatus{}, err
	}
	if payment == nil || payment.Method != orderdomain.PaymentMethodCryptoTransfer {
		return domain.PaymentStatus{}, domain.ErrNotCryptoPayment
	}

	now := s.clock.Now()
	if payment.Status == orderdomain.PaymentStatusPending && !payment.Sandbox && payment.MemoToken != nil {
		if order.ExpiresAt != nil && !now.Before(*order.ExpiresAt) {
			if _, err := s.fulfillment.ExpireGroup(ctx, order.CheckoutGroupID, fulfillmentdomain.CancelReasonPaymentExpired); err != nil {
				return domain.PaymentStatus{}, err
			}
		} else {
			payments, err := s.orders.ListPaymentsByGroup(ctx, s.db, order.CheckoutGroupID)
			if err != nil {
				return domain.PaymentStatus{}, err
			}
			pending := make([]orderdomain.PendingPayment, 0, len(payments))
			for _, p := range payments {
				if p.Status != orderdomain.PaymentStatusPending || p.MemoToken == nil {
					continue
				}
				pending = append(pending, orderdomain.PendingPayment{
					OrderID:         p.OrderID,
					CheckoutGroupID: order.CheckoutGroupID,
					BuyerID:         buyerID,
					Amount:          p.Amount,
					MemoToken:       *p.MemoToken,
					Details:         p.Details,
				})
			}
			for _, item := range groupPayments(s.log, pending) {
				if err := s.verify(ctx, item, order.CreatedAt); err != nil {
					return domain.PaymentStatus{}, err
				}
			}
		}
	}

	order, err = s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return domain.PaymentStatus{}, err
	}
	payment, err = s.orders.FindPayment(ctx, s.db, orderID)
	if err != nil {
		return domain.PaymentStatus{}, err
	}
	return domain.PaymentStatus{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: payment.Status,
	}, nil
}

func (s *Service) verify(ctx context.Context, item domain.Pending, since time.Time) error {
	policy := s.platform.Get().Reconciliation
	now := s.clock.Now()
	start := now.Add(-policy.Lookback())
	if since.Before(start) {
		start = since
	}
	records, _, err := s.history(ctx, []domain.Pending{item}, start, now)
	if err != nil {
		return err
	}
	matches := Match([]domain.Pending{item}, records, policy.Tolerance())
	if len(matches) == 0 {
		return nil
	}
	_, _, err = s.apply(ctx, matches[0])
	return err
}

func (s *Service) allow(ctx context.Context, userID snowflake.ID) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

