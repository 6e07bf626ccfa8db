package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/clock"
	fulfillmentdomain "github.com/smallbiznis/digimart/internal/fulfillment/domain"
	obsmetrics "github.com/smallbiznis/digimart/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/digimart/internal/order/domain"
	paymentdomain "github.com/smallbiznis/digimart/internal/payment/domain"
	"github.com/smallbiznis/digimart/internal/ratelimit"
	recondomain "github.com/smallbiznis/digimart/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lockKeyPrefix = "scheduler:lock:"

type Params struct {
	fx.In

	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Reconciliation recondomain.Service
	Fulfillment    fulfillmentdomain.Service
	Locker         *ratelimit.Locker `optional:"true"`
	Config         Config            `optional:"true"`
}

// jobLocker keeps replicas from running the same job at once. Jobs stay
// correct without it; the lock only saves duplicate provider calls.
type jobLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Scheduler struct {
	log            *zap.Logger
	cfg            Config
	genID          *snowflake.Node
	clock          clock.Clock
	reconciliation recondomain.Service
	fulfillment    fulfillmentdomain.Service
	locker         jobLocker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Reconciliation == nil || p.Fulfillment == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:            p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:            p.Config.withDefaults(),
		genID:          p.GenID,
		clock:          p.Clock,
		reconciliation: p.Reconciliation,
		fulfillment:    p.Fulfillment,
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	return s, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the rest
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// withJobLock runs fn while holding the replica lock for job. A held lock
// skips the run; a lock backend failure runs the job unguarded.
func (s *Scheduler) withJobLock(ctx context.Context, job string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	key := lockKeyPrefix + job
	token, acquired, err := s.locker.TryLock(ctx, key, ttl)
	if err != nil {
		s.logger(ctx).Warn("scheduler.lock.failed", zap.String("job", job), zap.Error(err))
		return fn(ctx)
	}
	if !acquired {
		obsmetrics.Scheduler().IncBatchDeferred(job, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.logger(ctx).Debug("scheduler.lock.held", zap.String("job", job))
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.logger(ctx).Warn("scheduler.lock.release_failed", zap.String("job", job), zap.Error(err))
		}
	}()
	return fn(ctx)
}

type job struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobExpireCheckouts, s.cfg.ExpireTimeout, s.ExpireCheckoutsJob},
		{JobReconcileCrypto, s.cfg.ReconcileTimeout, s.ReconcileCryptoJob},
		{JobResumeDeferred, s.cfg.ResumeTimeout, s.ResumeDeferredJob},
	}
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.Name) {
			continue
		}
		j := j
		err = errors.Join(err, s.runJob(parent, j.Name, j.Timeout, func(ctx context.Context) error {
			return s.withJobLock(ctx, j.Name, j.Timeout, j.Run)
		}))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) enabledJobs() []string {
	names := make([]string, 0, 3)
	for _, j := range s.jobs() {
		if s.isJobEnabled(j.Name) {
			names = append(names, j.Name)
		}
	}
	return names
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty allowlist enables every job (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ReconcileCryptoJob expires overdue crypto payments and deposits and
// settles what the exchange history confirms.
func (s *Scheduler) ReconcileCryptoJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobReconcileCrypto)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	report, err := s.reconciliation.Run(ctx)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddBatchProcessed(JobReconcileCrypto, "deposit", report.Credited)
	schedMetrics.AddBatchProcessed(JobReconcileCrypto, "order", report.Fulfilled)
	schedMetrics.IncOrderTransition(string(orderdomain.StatusPending), string(orderdomain.StatusCancelled), report.Expired)
	run.Count("expired", report.Expired)
	run.Count("matched", report.Matched)
	run.Count("credited", report.Credited)
	run.Count("fulfilled", report.Fulfilled)
	schedMetrics.SetReconciliationPending(report.Pending)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %w", obsmetrics.ErrUpstream, err)
		}
		s.logSchedulerError(ctx, run, "scheduler.reconcile.failed", err,
			zap.Int("pending", report.Pending),
			zap.Int("queries", report.Queries),
		)
		return err
	}
	if report.Pending > 0 {
		s.logger(ctx).Debug("scheduler.reconcile.pending",
			zap.Int("pending", report.Pending),
			zap.Int("queries", report.Queries),
		)
	}
	return nil
}

// ResumeDeferredJob delivers paid orders whose fraud delay has elapsed.
func (s *Scheduler) ResumeDeferredJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobResumeDeferred)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	resumed, err := s.fulfillment.ResumeDeferred(ctx, s.clock.Now())
	run.Count("resumed", resumed)
	obsmetrics.Scheduler().AddBatchProcessed(JobResumeDeferred, "order", resumed)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.resume.failed", err)
		return err
	}
	return nil
}

// ExpireCheckoutsJob cancels card and QR orders whose checkout lapsed.
func (s *Scheduler) ExpireCheckoutsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpireCheckouts)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	expired, err := s.fulfillment.ExpireCheckouts(ctx)
	run.Count("expired", expired)
	obsmetrics.Scheduler().IncOrderTransition(string(orderdomain.StatusPending), string(orderdomain.StatusCancelled), expired)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.expire.failed", err)
		return err
	}
	return nil
}
