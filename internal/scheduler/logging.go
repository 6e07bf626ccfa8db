package scheduler

import (
	"context"
	"sort"
	"time"

	obscontext "github.com/smallbiznis/digimart/internal/observability/context"
	obslogger "github.com/smallbiznis/digimart/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/digimart/internal/observability/metrics"
	"go.uber.org/zap"
)

// Actor recorded on audit rows and log lines produced by background jobs.
const (
	schedulerActorType = "system"
	schedulerActorID   = "scheduler"
)

// jobRun tallies what one job invocation did, keyed by outcome
// (expired, matched, credited, fulfilled, resumed).
type jobRun struct {
	job        string
	runID      string
	startedAt  time.Time
	outcomes   map[string]int
	errorCount int
}

type jobRunKey struct{}

func (r *jobRun) Count(outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[outcome] += n
}

func (r *jobRun) Total() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, n := range r.outcomes {
		total += n
	}
	return total
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount++
}

// ensureJobRun attaches a run to ctx unless one is already there. The bool
// reports whether the caller owns the run and must log its finish.
func (s *Scheduler) ensureJobRun(ctx context.Context, job string) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, schedulerActorType, schedulerActorID)
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	run, _ := ctx.Value(jobRunKey{}).(*jobRun)
	return run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Debug("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
	)
}

// logJobFinish stays at debug for idle runs so a quiet marketplace does not
// log three lines every interval.
func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("error_count", run.errorCount),
	}
	keys := make([]string, 0, len(run.outcomes))
	for key := range run.outcomes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fields = append(fields, zap.Int(key, run.outcomes[key]))
	}

	log := s.logger(ctx)
	switch {
	case run.errorCount > 0:
		log.Warn("scheduler.job.finish", fields...)
	case run.Total() == 0:
		log.Debug("scheduler.job.finish", fields...)
	default:
		log.Info("scheduler.job.finish", fields...)
	}
}

func (s *Scheduler) logSchedulerError(ctx context.Context, run *jobRun, msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	job := ""
	if run != nil {
		run.IncError()
		job = run.job
	}
	baseFields := []zap.Field{
		zap.String("job", job),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	}
	s.logger(ctx).Error(msg, append(baseFields, fields...)...)
}
