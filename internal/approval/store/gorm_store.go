package store

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/genpire/genpire/internal/approval/domain"
	pkgdb "github.com/genpire/genpire/pkg/db"
)

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) domain.Store {
	return &gormStore{db: db}
}

// Save keeps one record per product: updates in place when the product
// already has one, inserts otherwise. A losing insert race falls back to the
// update path, so the unique index never surfaces to callers.
func (s *gormStore) Save(ctx context.Context, record *domain.ApprovalRecord) error {
	existing, err := s.FindByProduct(ctx, record.ProductID)
	if err != nil {
		return err
	}
	if existing == nil {
		err := s.db.WithContext(ctx).Create(record).Error
		if err == nil || !pkgdb.IsDuplicateKeyErr(err) {
			return err
		}
		existing, err = s.FindByProduct(ctx, record.ProductID)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotFound
		}
	}

	record.ID = existing.ID
	record.CreatedAt = existing.CreatedAt
	return s.db.WithContext(ctx).Model(&domain.ApprovalRecord{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"front_view_url": record.FrontViewURL,
			"status":         record.Status,
			"feedback":       record.Feedback,
			"decided_at":     record.DecidedAt,
			"updated_at":     record.UpdatedAt,
		}).Error
}

func (s *gormStore) FindByID(ctx context.Context, id snowflake.ID) (*domain.ApprovalRecord, error) {
	var record domain.ApprovalRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *gormStore) FindByProduct(ctx context.Context, productID snowflake.ID) (*domain.ApprovalRecord, error) {
	var record domain.ApprovalRecord
	err := s.db.WithContext(ctx).Where("product_id = ?", productID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
