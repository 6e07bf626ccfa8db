package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPlatformConfigHolder),
	fx.Provide(func(h *PlatformConfigHolder) PlatformSource { return h }),
)
