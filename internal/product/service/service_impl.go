package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/genpire/genpire/internal/product/domain"
	"github.com/genpire/genpire/internal/usercontext"
	pkgdb "github.com/genpire/genpire/pkg/db"
	"github.com/genpire/genpire/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateProductRequest) (domain.Product, error) {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return domain.Product{}, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:          s.genID.Generate(),
		UserID:      userID,
		Name:        name,
		Slug:        slug.Make(name),
		Category:    strings.TrimSpace(req.Category),
		Description: strings.TrimSpace(req.Description),
		State:       domain.StateNoFrontView,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, &product); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.Product{}, domain.ErrDuplicateSlug
		}
		return domain.Product{}, err
	}

	return product, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetProductRequest) (domain.Product, error) {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return domain.Product{}, domain.ErrInvalidUser
	}

	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.Product{}, domain.ErrNotFound
	}

	item, err := s.repo.FindByID(ctx, s.db, userID, id)
	if err != nil {
		return domain.Product{}, err
	}
	if item == nil {
		return domain.Product{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListProductRequest) (domain.ListProductResponse, error) {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return domain.ListProductResponse{}, domain.ErrInvalidUser
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, userID, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListProductResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(product *domain.Product) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        product.ID.String(),
			CreatedAt: product.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	products := make([]domain.Product, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		products = append(products, *item)
	}

	resp := domain.ListProductResponse{Products: products}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) SetState(ctx context.Context, productID snowflake.ID, state domain.State) error {
	return s.repo.UpdateState(ctx, s.db, productID, state)
}
