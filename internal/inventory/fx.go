package inventory

import (
	"github.com/smallbiznis/digimart/internal/config"
	"github.com/smallbiznis/digimart/internal/inventory/repository"
	"github.com/smallbiznis/digimart/internal/inventory/sealer"
	"github.com/smallbiznis/digimart/internal/inventory/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const developmentSealingKey = "digimart-development-sealing-key"

var Module = fx.Module("inventory",
	fx.Provide(repository.Provide),
	fx.Provide(newSealer),
	fx.Provide(service.NewService),
)

func newSealer(cfg config.Config, log *zap.Logger) (*sealer.Sealer, error) {
	key := cfg.CredentialSealingKey
	if key == "" && !cfg.IsProduction() {
		log.Warn("CREDENTIAL_SEALING_KEY not set, using development key")
		key = developmentSealingKey
	}
	return sealer.New(key)
}
