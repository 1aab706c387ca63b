package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	approvaldomain "github.com/genpire/genpire/internal/approval/domain"
	"github.com/genpire/genpire/internal/clock"
	"github.com/genpire/genpire/internal/config"
	creditsdomain "github.com/genpire/genpire/internal/credits/domain"
	"github.com/genpire/genpire/internal/generation/domain"
	obsmetrics "github.com/genpire/genpire/internal/observability/metrics"
	"github.com/genpire/genpire/internal/providers/ai"
	productdomain "github.com/genpire/genpire/internal/product/domain"
	"github.com/genpire/genpire/internal/ratelimit"
	"github.com/genpire/genpire/internal/usercontext"
)

// Every provider call runs under this deadline so a hung generation cannot
// hold a reservation open indefinitely.
const generationTimeout = 60 * time.Second

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Costs     *config.CostsHolder
	Credits   creditsdomain.Service
	Products  productdomain.Service
	Approvals approvaldomain.Store
	Provider  ai.Provider
	Limiter   *ratelimit.GenerationLimiter `optional:"true"`
	Metrics   *obsmetrics.Metrics          `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	costs     *config.CostsHolder
	credits   creditsdomain.Service
	products  productdomain.Service
	approvals approvaldomain.Store
	provider  ai.Provider
	limiter   *ratelimit.GenerationLimiter
	metrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("generation.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		costs:     p.Costs,
		credits:   p.Credits,
		products:  p.Products,
		approvals: p.Approvals,
		provider:  p.Provider,
		limiter:   p.Limiter,
		metrics:   p.Metrics,
	}
}

func (s *Service) GenerateFrontView(ctx context.Context, req domain.GenerateFrontViewRequest) (*domain.StageResult, error) {
	userID, product, err := s.loadOwnedProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.State != productdomain.StateNoFrontView {
		return nil, domain.ErrFrontViewExists
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = product.Description
	}

	release, err := s.admit(ctx, userID, product.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	cost := s.costs.Get().Stages.FrontView
	var result *domain.StageResult
	err = s.credits.WithReservation(ctx, userID, string(domain.StageFrontView), cost, func(ctx context.Context) error {
		refs := referenceImages(req.SketchURL, req.LogoURL)
		generated, err := s.generate(ctx, prompt, refs)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		view := domain.ProductView{
			ID:        s.genID.Generate(),
			ProductID: product.ID,
			Kind:      domain.ViewKindFront,
			Label:     "front view",
			ImageURL:  generated.URL,
			Prompt:    prompt,
			Revision:  1,
			CreatedAt: now,
		}
		if err := s.db.WithContext(ctx).Create(&view).Error; err != nil {
			return fmt.Errorf("persist front view: %w", err)
		}

		record := approvaldomain.ApprovalRecord{
			ID:           s.genID.Generate(),
			ProductID:    product.ID,
			FrontViewURL: generated.URL,
			Status:       approvaldomain.StatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.approvals.Save(ctx, &record); err != nil {
			return fmt.Errorf("persist approval: %w", err)
		}
		if err := s.products.SetState(ctx, product.ID, productdomain.StatePendingApproval); err != nil {
			return fmt.Errorf("advance product state: %w", err)
		}

		result = &domain.StageResult{
			Stage:        domain.StageFrontView,
			CreditsSpent: cost,
			Views:        []domain.ProductView{view},
		}
		return nil
	})
	if err != nil {
		s.recordStage(ctx, domain.StageFrontView, "failure")
		return nil, err
	}

	s.recordStage(ctx, domain.StageFrontView, "success")
	s.fireAnalysis(ctx, product.ID, domain.StageFrontView)
	return result, nil
}

func (s *Service) ReviseFrontView(ctx context.Context, req domain.ReviseFrontViewRequest) (*domain.StageResult, error) {
	userID, product, err := s.loadOwnedProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.State != productdomain.StatePendingApproval {
		return nil, domain.ErrNotPendingApproval
	}
	record, err := s.approvals.FindByProduct(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotPendingApproval
	}

	release, err := s.admit(ctx, userID, product.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	feedback := strings.TrimSpace(req.Feedback)
	if feedback == "" {
		feedback = record.Feedback
	}

	revision, err := s.nextRevision(ctx, product.ID, domain.ViewKindFront)
	if err != nil {
		return nil, err
	}

	cost := s.costs.Get().Stages.FrontView
	var result *domain.StageResult
	err = s.credits.WithReservation(ctx, userID, string(domain.StageFrontView), cost, func(ctx context.Context) error {
		prompt := product.Description
		if feedback != "" {
			prompt = fmt.Sprintf("%s\n\nCreator feedback to address: %s", prompt, feedback)
		}
		generated, err := s.generate(ctx, prompt, referenceImages(record.FrontViewURL))
		if err != nil {
			return err
		}

		now := s.clock.Now()
		view := domain.ProductView{
			ID:        s.genID.Generate(),
			ProductID: product.ID,
			Kind:      domain.ViewKindFront,
			Label:     "front view",
			ImageURL:  generated.URL,
			Prompt:    prompt,
			Revision:  revision,
			CreatedAt: now,
		}
		if err := s.db.WithContext(ctx).Create(&view).Error; err != nil {
			return fmt.Errorf("persist front view revision: %w", err)
		}

		// Same record, back to pending with the fresh render. Never a second
		// pending record for the product.
		record.FrontViewURL = generated.URL
		record.Status = approvaldomain.StatusPending
		record.Feedback = feedback
		record.DecidedAt = nil
		record.UpdatedAt = now
		if err := s.approvals.Save(ctx, record); err != nil {
			return fmt.Errorf("update approval: %w", err)
		}

		result = &domain.StageResult{
			Stage:        domain.StageFrontView,
			CreditsSpent: cost,
			Views:        []domain.ProductView{view},
		}
		return nil
	})
	if err != nil {
		s.recordStage(ctx, domain.StageFrontView, "failure")
		return nil, err
	}

	s.recordStage(ctx, domain.StageFrontView, "success")
	s.fireAnalysis(ctx, product.ID, domain.StageFrontView)
	return result, nil
}

func (s *Service) Decide(ctx context.Context, req domain.DecideRequest) error {
	approvalID, err := snowflake.ParseString(strings.TrimSpace(req.ApprovalID))
	if err != nil || approvalID == 0 {
		return approvaldomain.ErrNotFound
	}
	record, err := s.approvals.FindByID(ctx, approvalID)
	if err != nil {
		return err
	}
	if record == nil {
		return approvaldomain.ErrNotFound
	}
	// The record itself carries no owner, so ownership runs through the
	// user-scoped product lookup. Someone else's approval id reads as absent.
	if _, _, err := s.loadOwnedProduct(ctx, record.ProductID.String()); err != nil {
		if errors.Is(err, productdomain.ErrNotFound) {
			return approvaldomain.ErrNotFound
		}
		return err
	}
	if record.Status == approvaldomain.StatusApproved {
		return approvaldomain.ErrAlreadyApproved
	}

	now := s.clock.Now()
	switch req.Decision {
	case domain.DecisionApproved:
		record.Status = approvaldomain.StatusApproved
		record.DecidedAt = &now
		record.UpdatedAt = now
		if err := s.approvals.Save(ctx, record); err != nil {
			return err
		}
		return s.products.SetState(ctx, record.ProductID, productdomain.StateApproved)
	case domain.DecisionRevisionRequested:
		record.Status = approvaldomain.StatusRevisionRequested
		record.Feedback = strings.TrimSpace(req.Feedback)
		record.DecidedAt = &now
		record.UpdatedAt = now
		return s.approvals.Save(ctx, record)
	default:
		return approvaldomain.ErrInvalidDecision
	}
}

func (s *Service) GenerateRemainingViews(ctx context.Context, req domain.StageRequest) (*domain.StageResult, error) {
	userID, product, err := s.loadOwnedProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	// The approval stays approved forever, so the product state is the gate
	// that keeps this stage from running twice. States only move forward.
	switch product.State {
	case productdomain.StateApproved:
	case productdomain.StateBaseViewsReady, productdomain.StateEnriched:
		return nil, domain.ErrBaseViewsExist
	default:
		return nil, domain.ErrFrontViewNotApproved
	}
	record, err := s.approvals.FindByProduct(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	// Validation failures here must not touch credits.
	if record == nil || record.Status != approvaldomain.StatusApproved || record.FrontViewURL == "" {
		return nil, domain.ErrFrontViewNotApproved
	}

	release, err := s.admit(ctx, userID, product.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	batch := []viewSpec{
		{kind: domain.ViewKindBack, label: "back view", prompt: "Back view of the product, same styling as the approved front view."},
		{kind: domain.ViewKindSide, label: "side view", prompt: "Side profile view of the product, same styling as the approved front view."},
		{kind: domain.ViewKindTop, label: "top view", prompt: "Top-down view of the product, same styling as the approved front view."},
	}

	cost := s.costs.Get().Stages.RemainingViews
	return s.runBatchStage(ctx, userID, product, domain.StageRemainingViews, cost, record.FrontViewURL, batch, productdomain.StateBaseViewsReady)
}

func (s *Service) GenerateCloseups(ctx context.Context, req domain.StageRequest) (*domain.StageResult, error) {
	batch := []viewSpec{
		{kind: domain.ViewKindCloseup, label: "material detail", prompt: "Close-up of the product's material and texture."},
		{kind: domain.ViewKindCloseup, label: "hardware detail", prompt: "Close-up of the product's stitching, seams and hardware."},
	}
	return s.enrichStage(ctx, req, domain.StageCloseups, func() int64 { return s.costs.Get().Stages.Closeups }, batch)
}

func (s *Service) GenerateComponents(ctx context.Context, req domain.StageRequest) (*domain.StageResult, error) {
	batch := []viewSpec{
		{kind: domain.ViewKindComponent, label: "component breakdown", prompt: "Exploded component breakdown of the product."},
		{kind: domain.ViewKindComponent, label: "trim sheet", prompt: "Flat lay of the product's trims, fasteners and labels."},
	}
	return s.enrichStage(ctx, req, domain.StageComponents, func() int64 { return s.costs.Get().Stages.Components }, batch)
}

func (s *Service) GenerateSketches(ctx context.Context, req domain.StageRequest) (*domain.StageResult, error) {
	batch := []viewSpec{
		{kind: domain.ViewKindSketch, label: "technical sketch front", prompt: "Black and white technical flat sketch, front."},
		{kind: domain.ViewKindSketch, label: "technical sketch back", prompt: "Black and white technical flat sketch, back."},
		{kind: domain.ViewKindSketch, label: "technical sketch side", prompt: "Black and white technical flat sketch, side."},
	}
	return s.enrichStage(ctx, req, domain.StageSketches, func() int64 { return s.costs.Get().Stages.Sketches }, batch)
}

func (s *Service) ListViews(ctx context.Context, productID snowflake.ID) ([]domain.ProductView, error) {
	if _, err := s.products.GetByID(ctx, productdomain.GetProductRequest{ID: productID.String()}); err != nil {
		return nil, err
	}

	var views []domain.ProductView
	err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Find(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}

type viewSpec struct {
	kind   domain.ViewKind
	label  string
	prompt string
}

// enrichStage handles the closeups/components/sketches stages, which share
// gating (base views must exist) and batch semantics.
func (s *Service) enrichStage(ctx context.Context, req domain.StageRequest, stage domain.Stage, cost func() int64, batch []viewSpec) (*domain.StageResult, error) {
	userID, product, err := s.loadOwnedProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.State != productdomain.StateBaseViewsReady && product.State != productdomain.StateEnriched {
		return nil, domain.ErrBaseViewsNotReady
	}
	record, err := s.approvals.FindByProduct(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	frontViewURL := ""
	if record != nil {
		frontViewURL = record.FrontViewURL
	}

	release, err := s.admit(ctx, userID, product.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	advanceTo := productdomain.State("")
	if product.State != productdomain.StateEnriched {
		advanceTo = productdomain.StateEnriched
	}
	return s.runBatchStage(ctx, userID, product, stage, cost(), frontViewURL, batch, advanceTo)
}

// runBatchStage reserves the stage cost once and generates every image in the
// batch under it. Any failure aborts the whole batch and refunds the full
// stage cost; partial output is never billed.
func (s *Service) runBatchStage(ctx context.Context, userID snowflake.ID, product *productdomain.Product, stage domain.Stage, cost int64, frontViewURL string, batch []viewSpec, advanceTo productdomain.State) (*domain.StageResult, error) {
	var result *domain.StageResult
	err := s.credits.WithReservation(ctx, userID, string(stage), cost, func(ctx context.Context) error {
		now := s.clock.Now()
		views := make([]domain.ProductView, 0, len(batch))
		for _, spec := range batch {
			prompt := fmt.Sprintf("%s %s", product.Description, spec.prompt)
			generated, err := s.generate(ctx, prompt, referenceImages(frontViewURL))
			if err != nil {
				return err
			}
			views = append(views, domain.ProductView{
				ID:        s.genID.Generate(),
				ProductID: product.ID,
				Kind:      spec.kind,
				Label:     spec.label,
				ImageURL:  generated.URL,
				Prompt:    prompt,
				Revision:  1,
				CreatedAt: now,
			})
		}

		if err := s.db.WithContext(ctx).Create(&views).Error; err != nil {
			return fmt.Errorf("persist %s views: %w", stage, err)
		}
		if advanceTo != "" {
			if err := s.products.SetState(ctx, product.ID, advanceTo); err != nil {
				return fmt.Errorf("advance product state: %w", err)
			}
		}
		result = &domain.StageResult{
			Stage:        stage,
			CreditsSpent: cost,
			Views:        views,
		}
		return nil
	})
	if err != nil {
		s.recordStage(ctx, stage, "failure")
		return nil, err
	}

	s.recordStage(ctx, stage, "success")
	s.fireAnalysis(ctx, product.ID, stage)
	return result, nil
}

// generate calls the provider under the stage deadline. Provider failures are
// wrapped as generation failures so the server maps them to the right status.
func (s *Service) generate(ctx context.Context, prompt string, refs []string) (*ai.GenerateResult, error) {
	genCtx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	generated, err := s.provider.GenerateImage(genCtx, ai.GenerateRequest{
		Prompt:          prompt,
		ReferenceImages: refs,
		Size:            "1024x1024",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	return generated, nil
}

func (s *Service) loadOwnedProduct(ctx context.Context, productID string) (snowflake.ID, *productdomain.Product, error) {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return 0, nil, productdomain.ErrInvalidUser
	}
	product, err := s.products.GetByID(ctx, productdomain.GetProductRequest{ID: productID})
	if err != nil {
		return 0, nil, err
	}
	return userID, &product, nil
}

// admit applies the per-creator token bucket and the per-product lock. The
// returned release function is safe to call when admission failed.
func (s *Service) admit(ctx context.Context, userID, productID snowflake.ID) (func(), error) {
	noop := func() {}

	allowed, err := s.limiter.AllowUser(ctx, userID)
	if err != nil {
		// Fail open on limiter infrastructure errors; admission control is
		// protective, not financial.
		s.log.Warn("rate limiter unavailable", zap.Error(err))
	} else if !allowed.Allowed {
		s.recordRateLimit(ctx, "generation", "token_bucket")
		return noop, domain.ErrRateLimited
	}

	token, ok, err := s.limiter.TryLockProduct(ctx, productID)
	if err != nil {
		s.log.Warn("product lock unavailable", zap.Error(err))
		return noop, nil
	}
	if !ok {
		s.recordRateLimit(ctx, "generation", "product_lock")
		return noop, domain.ErrProductBusy
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.limiter.ReleaseProduct(releaseCtx, productID, token); err != nil {
			s.log.Warn("product lock release failed", zap.Error(err))
		}
	}, nil
}

func (s *Service) nextRevision(ctx context.Context, productID snowflake.ID, kind domain.ViewKind) (int, error) {
	var latest int
	err := s.db.WithContext(ctx).Model(&domain.ProductView{}).
		Select("COALESCE(MAX(revision), 0)").
		Where("product_id = ? AND kind = ?", productID, kind).
		Scan(&latest).Error
	if err != nil {
		return 0, err
	}
	return latest + 1, nil
}

// fireAnalysis kicks off the post-stage analysis hook. It runs after credits
// are committed, so nothing it does can move the ledger; failures only log.
func (s *Service) fireAnalysis(ctx context.Context, productID snowflake.ID, stage domain.Stage) {
	bg := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("view analysis panicked", zap.Any("panic", r))
			}
		}()
		if err := s.analyzeViews(bg, productID, stage); err != nil {
			s.log.Warn("view analysis failed",
				zap.String("product_id", productID.String()),
				zap.String("stage", string(stage)),
				zap.Error(err),
			)
		}
	}()
}

func (s *Service) analyzeViews(ctx context.Context, productID snowflake.ID, stage domain.Stage) error {
	analysisCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var count int64
	if err := s.db.WithContext(analysisCtx).Model(&domain.ProductView{}).
		Where("product_id = ?", productID).
		Count(&count).Error; err != nil {
		return err
	}
	s.log.Debug("stage analysis complete",
		zap.String("product_id", productID.String()),
		zap.String("stage", string(stage)),
		zap.Int64("total_views", count),
	)
	return nil
}

func (s *Service) recordStage(ctx context.Context, stage domain.Stage, outcome string) {
	s.metrics.RecordGenerationStage(ctx, string(stage), outcome)
}

func (s *Service) recordRateLimit(ctx context.Context, endpoint, reason string) {
	s.metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}

func referenceImages(urls ...string) []string {
	refs := make([]string, 0, len(urls))
	for _, u := range urls {
		if strings.TrimSpace(u) != "" {
			refs = append(refs, u)
		}
	}
	return refs
}
