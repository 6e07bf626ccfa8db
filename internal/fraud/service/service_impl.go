package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	"github.com/smallbiznis/digimart/internal/fraud/domain"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Platform config.PlatformSource
	Orders   orderdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	platform config.PlatformSource
	orders   orderdomain.Repository
	rules    *ruleSet
}

func NewService(p Params) (domain.Service, error) {
	log := p.Log.Named("fraud.service")
	rules, err := newRuleSet(log)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:       p.DB,
		log:      log,
		clock:    p.Clock,
		platform: p.Platform,
		orders:   p.Orders,
		rules:    rules,
	}, nil
}

func (s *Service) Assess(ctx context.Context, in domain.Input) (domain.Assessment, error) {
	policy := s.platform.Get().Fraud
	now := s.clock.Now()

	window := time.Duration(policy.VelocityWindowMinutes) * time.Minute
	velocity, err := s.orders.CountRecentByBuyer(ctx, s.db, in.BuyerID, now.Add(-window))
	if err != nil {
		return domain.Assessment{}, err
	}

	var out domain.Assessment
	out.Velocity = velocity
	out.IsHighValue = in.Total.GreaterThanOrEqual(decimal.NewFromFloat(policy.HighValueThreshold))

	if out.IsHighValue && reversible(policy.ReversibleMethods, in.Method) {
		out.Reasons = append(out.Reasons, domain.ReasonHighValueReversible)
	}
	if policy.VelocityReviewCount > 0 && velocity >= int64(policy.VelocityReviewCount) {
		out.Reasons = append(out.Reasons, domain.ReasonVelocity)
	}
	if policy.ManualReviewThreshold > 0 && in.Total.GreaterThanOrEqual(decimal.NewFromFloat(policy.ManualReviewThreshold)) {
		out.Reasons = append(out.Reasons, domain.ReasonManualThreshold)
	}

	if len(policy.Rules) > 0 {
		total, _ := in.Total.Float64()
		matched := s.rules.evaluate(s.rules.programs(policy.Rules), map[string]any{
			"total":      total,
			"method":     string(in.Method),
			"item_count": int64(in.ItemCount),
			"velocity":   velocity,
		})
		for _, name := range matched {
			out.Reasons = append(out.Reasons, domain.ReasonRulePrefix+name)
		}
	}

	out.RequiresManualReview = len(out.Reasons) > 0
	out.ShouldDelay = out.IsHighValue || out.RequiresManualReview
	if out.ShouldDelay {
		out.DelayMinutes = policy.DelayMinutes
		if out.IsHighValue && policy.HighValueDelayMinutes > 0 {
			out.DelayMinutes = policy.HighValueDelayMinutes
		}
	}

	if out.RequiresManualReview {
		s.log.Info("checkout flagged for review",
			zap.String("buyer_id", in.BuyerID.String()),
			zap.String("total", in.Total.StringFixed(2)),
			zap.String("payment_method", string(in.Method)),
			zap.Strings("reasons", out.Reasons),
		)
	}
	return out, nil
}

func reversible(methods []string, method orderdomain.PaymentMethod) bool {
	for _, m := range methods {
		if strings.EqualFold(strings.TrimSpace(m), string(method)) {
			return true
		}
	}
	return false
}
