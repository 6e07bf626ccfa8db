package scheduler

import (
	"errors"
	"time"

	"github.com/smallbiznis/digimart/internal/config"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const (
	JobReconcileCrypto = "reconcile_crypto"
	JobResumeDeferred  = "resume_deferred"
	JobExpireCheckouts = "expire_checkouts"
)

// Config controls scheduler intervals and per job timeouts.
type Config struct {
	RunInterval      time.Duration
	ReconcileTimeout time.Duration
	ResumeTimeout    time.Duration
	ExpireTimeout    time.Duration
	EnabledJobs      []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:      2 * time.Minute,
		ReconcileTimeout: 90 * time.Second,
		ResumeTimeout:    60 * time.Second,
		ExpireTimeout:    30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.ReconcileTimeout <= 0 {
		c.ReconcileTimeout = defaults.ReconcileTimeout
	}
	if c.ResumeTimeout <= 0 {
		c.ResumeTimeout = defaults.ResumeTimeout
	}
	if c.ExpireTimeout <= 0 {
		c.ExpireTimeout = defaults.ExpireTimeout
	}
	return c
}
