package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/genpire/genpire/internal/clock"
	generationdomain "github.com/genpire/genpire/internal/generation/domain"
	"github.com/genpire/genpire/internal/providers/pdf"
	productdomain "github.com/genpire/genpire/internal/product/domain"
	"github.com/genpire/genpire/internal/techpack/domain"
	"github.com/genpire/genpire/pkg/repository"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     repository.Repository[domain.TechPack]
	Products productdomain.Service
	PDF      pdf.Provider
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     repository.Repository[domain.TechPack]
	products productdomain.Service
	pdf      pdf.Provider
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("techpack.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		products: p.Products,
		pdf:      p.PDF,
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertTechPackRequest) (domain.TechPack, error) {
	product, err := s.products.GetByID(ctx, productdomain.GetProductRequest{ID: req.ProductID})
	if err != nil {
		return domain.TechPack{}, err
	}

	details, err := json.Marshal(req.Details)
	if err != nil {
		return domain.TechPack{}, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}

	now := s.clock.Now()
	existing, err := s.repo.FindOne(ctx, &domain.TechPack{ProductID: product.ID})
	if err != nil {
		return domain.TechPack{}, err
	}
	if existing != nil {
		existing.Summary = strings.TrimSpace(req.Summary)
		existing.Details = details
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, existing.ID.String(), map[string]any{
			"summary":    existing.Summary,
			"details":    existing.Details,
			"updated_at": now,
		}); err != nil {
			return domain.TechPack{}, err
		}
		return *existing, nil
	}

	pack := domain.TechPack{
		ID:        s.genID.Generate(),
		ProductID: product.ID,
		Summary:   strings.TrimSpace(req.Summary),
		Details:   details,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, &pack); err != nil {
		return domain.TechPack{}, err
	}
	return pack, nil
}

func (s *Service) GetByProduct(ctx context.Context, productID string) (domain.TechPack, error) {
	product, err := s.products.GetByID(ctx, productdomain.GetProductRequest{ID: productID})
	if err != nil {
		return domain.TechPack{}, err
	}
	pack, err := s.repo.FindOne(ctx, &domain.TechPack{ProductID: product.ID})
	if err != nil {
		return domain.TechPack{}, err
	}
	if pack == nil {
		return domain.TechPack{}, domain.ErrNotFound
	}
	return *pack, nil
}

func (s *Service) RenderPDF(ctx context.Context, productID string) (io.Reader, error) {
	product, err := s.products.GetByID(ctx, productdomain.GetProductRequest{ID: productID})
	if err != nil {
		return nil, err
	}
	pack, err := s.repo.FindOne(ctx, &domain.TechPack{ProductID: product.ID})
	if err != nil {
		return nil, err
	}
	if pack == nil {
		return nil, domain.ErrNotFound
	}

	var details domain.Details
	if len(pack.Details) > 0 {
		if err := json.Unmarshal(pack.Details, &details); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
		}
	}

	var views []generationdomain.ProductView
	if err := s.db.WithContext(ctx).
		Where("product_id = ?", product.ID).
		Order("created_at ASC").
		Find(&views).Error; err != nil {
		return nil, err
	}

	data := pdf.TechPackData{
		ProductName: product.Name,
		Category:    product.Category,
		GeneratedAt: s.clock.Now().Format(time.RFC3339),
		Summary:     pack.Summary,
	}
	for _, m := range details.Materials {
		data.Materials = append(data.Materials, pdf.MaterialLine{Name: m.Name, Content: m.Content, Supplier: m.Supplier})
	}
	for _, m := range details.Measurements {
		data.Measurements = append(data.Measurements, pdf.MeasurementLine{Point: m.Point, Value: m.Value, Unit: m.Unit})
	}
	data.Construction = append(data.Construction, details.Construction...)
	for _, view := range views {
		data.ViewURLs = append(data.ViewURLs, pdf.ViewLine{Kind: string(view.Kind), URL: view.ImageURL})
	}

	return s.pdf.GenerateTechPack(ctx, data)
}
