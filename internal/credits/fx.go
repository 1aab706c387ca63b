package credits

import (
	"go.uber.org/fx"

	"github.com/genpire/genpire/internal/credits/service"
)

var Module = fx.Module("credits",
	fx.Provide(service.New),
)
