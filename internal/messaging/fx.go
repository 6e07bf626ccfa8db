package messaging

import (
	"github.com/smallbiznis/digimart/internal/messaging/repository"
	"github.com/smallbiznis/digimart/internal/messaging/service"
	"go.uber.org/fx"
)

var Module = fx.Module("messaging",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
