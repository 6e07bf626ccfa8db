package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/audit"
	"github.com/smallbiznis/digimart/internal/catalog"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	"github.com/smallbiznis/digimart/internal/fulfillment"
	"github.com/smallbiznis/digimart/internal/inventory"
	"github.com/smallbiznis/digimart/internal/messaging"
	"github.com/smallbiznis/digimart/internal/notification"
	"github.com/smallbiznis/digimart/internal/observability"
	"github.com/smallbiznis/digimart/internal/order"
	"github.com/smallbiznis/digimart/internal/payment"
	"github.com/smallbiznis/digimart/internal/providers"
	"github.com/smallbiznis/digimart/internal/ratelimit"
	"github.com/smallbiznis/digimart/internal/reconciliation"
	"github.com/smallbiznis/digimart/internal/scheduler"
	"github.com/smallbiznis/digimart/internal/seller"
	"github.com/smallbiznis/digimart/internal/wallet"
	"github.com/smallbiznis/digimart/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
		providers.Module,

		// Domain services required by scheduler
		audit.Module,
		catalog.Module,
		seller.Module,
		inventory.Module,
		wallet.Module,
		order.Module,
		messaging.Module,
		notification.Module,
		fulfillment.Module,
		payment.Module,
		reconciliation.Module,

		// No server module!
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.Mode = config.ModeScheduler
			return cfg
		}),
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
