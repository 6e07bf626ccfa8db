package fulfillment

import (
	"github.com/smallbiznis/digimart/internal/fulfillment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fulfillment",
	fx.Provide(service.NewService),
)
