package reconciliation

import (
	"github.com/smallbiznis/digimart/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation",
	fx.Provide(service.NewService),
)
