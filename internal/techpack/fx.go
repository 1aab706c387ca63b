package techpack

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/genpire/genpire/internal/techpack/domain"
	"github.com/genpire/genpire/internal/techpack/service"
	"github.com/genpire/genpire/pkg/repository"
)

var Module = fx.Module("techpack",
	fx.Provide(func(db *gorm.DB) repository.Repository[domain.TechPack] {
		return repository.ProvideStore[domain.TechPack](db)
	}),
	fx.Provide(service.New),
)
