package ai

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/genpire/genpire/internal/config"
)

var Module = fx.Module("providers.ai",
	fx.Provide(func(cfg config.Config, log *zap.Logger) (Provider, error) {
		if cfg.AI.Provider == "openai" {
			return NewOpenAIProvider(cfg, log)
		}
		return NewStubProvider(), nil
	}),
)
