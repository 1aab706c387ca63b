package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/genpire/genpire/pkg/db/pagination"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*Product, error)
	List(ctx context.Context, db *gorm.DB, userID snowflake.ID, page pagination.Pagination) ([]*Product, error)
	UpdateState(ctx context.Context, db *gorm.DB, id snowflake.ID, state State) error
}
