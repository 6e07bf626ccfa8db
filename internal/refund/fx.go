package refund

import (
	"github.com/smallbiznis/digimart/internal/refund/repository"
	"github.com/smallbiznis/digimart/internal/refund/service"
	"go.uber.org/fx"
)

var Module = fx.Module("refund",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
