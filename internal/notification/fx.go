package notification

import (
	"context"

	"github.com/smallbiznis/digimart/internal/notification/domain"
	"github.com/smallbiznis/digimart/internal/notification/repository"
	"github.com/smallbiznis/digimart/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(repository.Provide),
	fx.Provide(
		fx.Annotate(service.NewService, fx.As(new(domain.Service))),
	),
	fx.Invoke(registerDrain),
)

// registerDrain lets queued emails finish before shutdown.
func registerDrain(lc fx.Lifecycle, svc domain.Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				svc.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}
