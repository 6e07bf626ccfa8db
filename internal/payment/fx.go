package payment

import (
	"github.com/smallbiznis/digimart/internal/payment/adapters"
	"github.com/smallbiznis/digimart/internal/payment/repository"
	"github.com/smallbiznis/digimart/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(adapters.NewRegistry),
	fx.Provide(adapters.NewExternalLedger),
	fx.Provide(webhook.NewService),
)
