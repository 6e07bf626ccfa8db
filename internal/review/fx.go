package review

import (
	"github.com/smallbiznis/digimart/internal/review/service"
	"go.uber.org/fx"
)

var Module = fx.Module("review",
	fx.Provide(service.NewService),
)
