package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/genpire/genpire/internal/product/domain"
	"github.com/genpire/genpire/pkg/db/option"
	"github.com/genpire/genpire/pkg/db/pagination"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Create(product).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*domain.Product, error) {
	var product domain.Product
	err := db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, userID snowflake.ID, page pagination.Pagination) ([]*domain.Product, error) {
	var items []*domain.Product
	stmt := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("user_id = ?", userID)

	stmt = option.WithOrder("created_at DESC").Apply(stmt)
	stmt = option.ApplyPagination(page).Apply(stmt)

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, id snowflake.ID, state domain.State) error {
	return db.WithContext(ctx).Model(&domain.Product{}).
		Where("id = ?", id).
		Update("state", state).Error
}
