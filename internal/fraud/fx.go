package fraud

import (
	"github.com/smallbiznis/digimart/internal/fraud/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fraud",
	fx.Provide(service.NewService),
)
