package wallet

import (
	"github.com/smallbiznis/digimart/internal/memo"
	"github.com/smallbiznis/digimart/internal/wallet/repository"
	"github.com/smallbiznis/digimart/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet",
	fx.Provide(repository.Provide),
	fx.Provide(memo.NewIssuer),
	fx.Provide(service.NewService),
	fx.Provide(service.NewDepositService),
)
