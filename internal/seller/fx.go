package seller

import (
	"github.com/smallbiznis/digimart/internal/seller/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("seller",
	fx.Provide(repository.Provide),
)
