package scheduler

import (
	"context"

	"github.com/smallbiznis/digimart/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(startLoop),
)

// startLoop runs the job loop in monolith and scheduler modes. The api
// binary builds the graph without it.
func startLoop(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.RunsScheduler() {
		return
	}

	var cancel context.CancelFunc
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			sched.log.Info("scheduler started",
				zap.Duration("interval", sched.cfg.RunInterval),
				zap.Strings("jobs", sched.enabledJobs()),
			)
			go func() {
				defer close(done)
				sched.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			// let an in-flight reconciliation finish its transaction
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
