package migration

import (
	"fmt"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	approvaldomain "github.com/genpire/genpire/internal/approval/domain"
	authdomain "github.com/genpire/genpire/internal/auth/domain"
	"github.com/genpire/genpire/internal/config"
	creditsdomain "github.com/genpire/genpire/internal/credits/domain"
	generationdomain "github.com/genpire/genpire/internal/generation/domain"
	productdomain "github.com/genpire/genpire/internal/product/domain"
	"github.com/genpire/genpire/internal/seed"
	techpackdomain "github.com/genpire/genpire/internal/techpack/domain"
)

var Module = fx.Module("migration",
	fx.Invoke(Run),
)

// Run brings the schema up to date before anything else touches the database.
// Postgres uses the embedded versioned migrations; other dialects fall back
// to AutoMigrate since the SQL files are written for postgres.
func Run(cfg config.Config, db *gorm.DB, log *zap.Logger) error {
	log = log.Named("migration")

	if strings.EqualFold(cfg.DBType, "postgres") {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("unwrap database handle: %w", err)
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
	} else {
		if err := db.AutoMigrate(
			&authdomain.User{},
			&creditsdomain.CreditBalance{},
			&creditsdomain.CreditReservation{},
			&creditsdomain.CreditGrant{},
			&productdomain.Product{},
			&generationdomain.ProductView{},
			&approvaldomain.ApprovalRecord{},
			&techpackdomain.TechPack{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	if cfg.BootstrapDemoCreator {
		if err := seed.EnsureDemoCreator(db); err != nil {
			return fmt.Errorf("seed demo creator: %w", err)
		}
		log.Info("demo creator seeded")
	}

	log.Info("schema up to date", zap.String("db_type", cfg.DBType))
	return nil
}
