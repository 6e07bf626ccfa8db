package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/digimart/internal/config"
	recondomain "github.com/smallbiznis/digimart/internal/reconciliation/domain"
	"go.uber.org/zap"
)

const keyVerifyUser = "verify:user:%s"

// VerificationLimiter throttles user triggered payment and deposit checks,
// each of which costs a call to the exchange API.
type VerificationLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

// NewVerificationLimiter returns nil when redis is not configured, which
// leaves verification unthrottled.
func NewVerificationLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) recondomain.Limiter {
	limits := cfg.RateLimit
	if client == nil || limits.VerifyPerMinute <= 0 || limits.VerifyBurst <= 0 {
		return nil
	}
	return &VerificationLimiter{
		bucket: NewTokenBucket(client),
		rate:   limits.VerifyPerMinute / 60,
		burst:  limits.VerifyBurst,
		log:    log.Named("ratelimit.verify"),
	}
}

func (l *VerificationLimiter) Allow(ctx context.Context, userID snowflake.ID) (bool, error) {
	if l == nil || l.bucket == nil {
		return true, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyVerifyUser, userID), l.rate, l.burst)
	if err != nil {
		// Fail open: the check is idempotent and the bucket only guards API cost.
		l.log.Warn("verification limiter unavailable", zap.Error(err))
		return true, nil
	}
	return res.Allowed, nil
}
