package approval

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/genpire/genpire/internal/approval/domain"
	"github.com/genpire/genpire/internal/approval/store"
	"github.com/genpire/genpire/internal/config"
)

var Module = fx.Module("approval",
	fx.Provide(func(cfg config.Config, db *gorm.DB) domain.Store {
		if cfg.ApprovalStore == config.ApprovalStoreMemory {
			return store.NewMemoryStore()
		}
		return store.NewGormStore(db)
	}),
)
