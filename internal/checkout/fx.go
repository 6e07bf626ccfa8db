package checkout

import (
	"github.com/smallbiznis/digimart/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout",
	fx.Provide(service.NewService),
)
