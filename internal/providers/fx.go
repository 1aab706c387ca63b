package providers

import (
	"go.uber.org/fx"

	"github.com/genpire/genpire/internal/providers/ai"
	"github.com/genpire/genpire/internal/providers/pdf"
)

var Module = fx.Module("providers",
	ai.Module,
	fx.Provide(pdf.New),
)
