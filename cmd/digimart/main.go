package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/digimart/internal/audit"
	"github.com/smallbiznis/digimart/internal/authorization"
	"github.com/smallbiznis/digimart/internal/catalog"
	"github.com/smallbiznis/digimart/internal/checkout"
	"github.com/smallbiznis/digimart/internal/clock"
	"github.com/smallbiznis/digimart/internal/config"
	"github.com/smallbiznis/digimart/internal/fraud"
	"github.com/smallbiznis/digimart/internal/fulfillment"
	"github.com/smallbiznis/digimart/internal/inventory"
	"github.com/smallbiznis/digimart/internal/messaging"
	"github.com/smallbiznis/digimart/internal/migration"
	"github.com/smallbiznis/digimart/internal/notification"
	"github.com/smallbiznis/digimart/internal/observability"
	"github.com/smallbiznis/digimart/internal/order"
	"github.com/smallbiznis/digimart/internal/payment"
	"github.com/smallbiznis/digimart/internal/providers"
	"github.com/smallbiznis/digimart/internal/ratelimit"
	"github.com/smallbiznis/digimart/internal/reconciliation"
	"github.com/smallbiznis/digimart/internal/refund"
	"github.com/smallbiznis/digimart/internal/review"
	"github.com/smallbiznis/digimart/internal/scheduler"
	"github.com/smallbiznis/digimart/internal/seller"
	"github.com/smallbiznis/digimart/internal/server"
	"github.com/smallbiznis/digimart/internal/wallet"
	"github.com/smallbiznis/digimart/pkg/db"
	"go.uber.org/fx"
)

// The monolith serves HTTP and runs the scheduler. APP_MODE narrows it to
// one role when the same binary is deployed twice.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,
		providers.Module,

		// Functional Domains
		audit.Module,
		authorization.Module,
		catalog.Module,
		seller.Module,
		inventory.Module,
		wallet.Module,
		order.Module,
		fraud.Module,
		messaging.Module,
		notification.Module,
		fulfillment.Module,
		payment.Module,
		checkout.Module,
		reconciliation.Module,
		refund.Module,
		review.Module,

		server.Module,
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
