package product

import (
	"go.uber.org/fx"

	"github.com/genpire/genpire/internal/product/repository"
	"github.com/genpire/genpire/internal/product/service"
)

var Module = fx.Module("product.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
