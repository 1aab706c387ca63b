package generation

import (
	"go.uber.org/fx"

	"github.com/genpire/genpire/internal/generation/service"
)

var Module = fx.Module("generation",
	fx.Provide(service.New),
)
