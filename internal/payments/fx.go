package payments

import "go.uber.org/fx"

var Module = fx.Module("payments",
	fx.Provide(New),
)
