package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	approvaldomain "github.com/genpire/genpire/internal/approval/domain"
	approvalstore "github.com/genpire/genpire/internal/approval/store"
	"github.com/genpire/genpire/internal/clock"
	"github.com/genpire/genpire/internal/config"
	creditsdomain "github.com/genpire/genpire/internal/credits/domain"
	creditsservice "github.com/genpire/genpire/internal/credits/service"
	"github.com/genpire/genpire/internal/generation/domain"
	"github.com/genpire/genpire/internal/providers/ai"
	productdomain "github.com/genpire/genpire/internal/product/domain"
	productrepo "github.com/genpire/genpire/internal/product/repository"
	productservice "github.com/genpire/genpire/internal/product/service"
	"github.com/genpire/genpire/internal/usercontext"
)

type fakeProvider struct {
	calls     int
	failOn    int // fail the nth call, 0 = never
	failTotal bool
}

func (p *fakeProvider) GenerateImage(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResult, error) {
	p.calls++
	if p.failTotal || (p.failOn > 0 && p.calls == p.failOn) {
		return nil, errors.New("upstream model unavailable")
	}
	return &ai.GenerateResult{URL: fmt.Sprintf("https://images.test/%d.png", p.calls)}, nil
}

type testEnv struct {
	svc      domain.Service
	products productdomain.Service
	credits  creditsdomain.Service
	db       *gorm.DB
	provider *fakeProvider
	userID   snowflake.ID
	ctx      context.Context
}

func newTestEnv(t *testing.T, startingCredits int64) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&creditsdomain.CreditBalance{},
		&creditsdomain.CreditReservation{},
		&creditsdomain.CreditGrant{},
		&productdomain.Product{},
		&domain.ProductView{},
		&approvaldomain.ApprovalRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	credits := creditsservice.New(creditsservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
	})
	products := productservice.New(productservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  productrepo.Provide(),
	})
	provider := &fakeProvider{}

	svc := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Costs:     config.NewStaticCostsHolder(config.DefaultCostsConfig()),
		Credits:   credits,
		Products:  products,
		Approvals: approvalstore.NewGormStore(db),
		Provider:  provider,
	})

	userID := node.Generate()
	if startingCredits > 0 {
		balance := creditsdomain.CreditBalance{
			UserID:     userID,
			Credits:    startingCredits,
			Status:     creditsdomain.BalanceStatusActive,
			Membership: creditsdomain.MembershipStarter,
			CreatedAt:  fake.Now(),
			UpdatedAt:  fake.Now(),
		}
		if err := db.Create(&balance).Error; err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	}

	return &testEnv{
		svc:      svc,
		products: products,
		credits:  credits,
		db:       db,
		provider: provider,
		userID:   userID,
		ctx:      usercontext.WithUserID(context.Background(), userID),
	}
}

func (e *testEnv) createProduct(t *testing.T) productdomain.Product {
	t.Helper()
	product, err := e.products.Create(e.ctx, productdomain.CreateProductRequest{
		Name:        "Canvas Tote",
		Category:    "bags",
		Description: "A minimal canvas tote bag with leather straps.",
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

func (e *testEnv) balance(t *testing.T) int64 {
	t.Helper()
	var balance creditsdomain.CreditBalance
	if err := e.db.Where("user_id = ?", e.userID).First(&balance).Error; err != nil {
		t.Fatalf("load balance: %v", err)
	}
	return balance.Credits
}

func (e *testEnv) productState(t *testing.T, id snowflake.ID) productdomain.State {
	t.Helper()
	var product productdomain.Product
	if err := e.db.Where("id = ?", id).First(&product).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.State
}

func (e *testEnv) setProductState(t *testing.T, id snowflake.ID, state productdomain.State) {
	t.Helper()
	if err := e.db.Model(&productdomain.Product{}).Where("id = ?", id).Update("state", state).Error; err != nil {
		t.Fatalf("set product state: %v", err)
	}
}

func (e *testEnv) approveWithURL(t *testing.T, productID snowflake.ID, url string) {
	t.Helper()
	now := time.Now().UTC()
	record := approvaldomain.ApprovalRecord{
		ID:           snowflake.ID(now.UnixNano()),
		ProductID:    productID,
		FrontViewURL: url,
		Status:       approvaldomain.StatusApproved,
		DecidedAt:    &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.db.Create(&record).Error; err != nil {
		t.Fatalf("seed approval: %v", err)
	}
}

func TestFrontViewChargesAndOpensApproval(t *testing.T) {
	env := newTestEnv(t, 10)
	product := env.createProduct(t)

	result, err := env.svc.GenerateFrontView(env.ctx, domain.GenerateFrontViewRequest{
		ProductID: product.ID.String(),
		Prompt:    "Minimal canvas tote, studio lighting",
		SketchURL: "https://uploads.test/sketch.png",
	})
	if err != nil {
		t.Fatalf("generate front view: %v", err)
	}
	if result.CreditsSpent != 2 {
		t.Fatalf("credits spent = %d, want 2", result.CreditsSpent)
	}
	if got := env.balance(t); got != 8 {
		t.Fatalf("balance = %d, want 8", got)
	}
	if got := env.productState(t, product.ID); got != productdomain.StatePendingApproval {
		t.Fatalf("state = %s, want pending_approval", got)
	}

	var record approvaldomain.ApprovalRecord
	if err := env.db.Where("product_id = ?", product.ID).First(&record).Error; err != nil {
		t.Fatalf("load approval: %v", err)
	}
	if record.Status != approvaldomain.StatusPending {
		t.Fatalf("approval status = %s, want pending", record.Status)
	}
	if record.FrontViewURL == "" {
		t.Fatalf("approval missing front view url")
	}
}

func TestFrontViewProviderFailureRefunds(t *testing.T) {
	env := newTestEnv(t, 10)
	env.provider.failTotal = true
	product := env.createProduct(t)

	_, err := env.svc.GenerateFrontView(env.ctx, domain.GenerateFrontViewRequest{
		ProductID: product.ID.String(),
		Prompt:    "Minimal canvas tote",
	})
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if got := env.balance(t); got != 10 {
		t.Fatalf("balance = %d, want 10 after refund", got)
	}
	if got := env.productState(t, product.ID); got != productdomain.StateNoFrontView {
		t.Fatalf("state = %s, want no_front_view", got)
	}

	var views int64
	if err := env.db.Model(&domain.ProductView{}).Count(&views).Error; err != nil {
		t.Fatalf("count views: %v", err)
	}
	if views != 0 {
		t.Fatalf("views = %d, want 0", views)
	}
}

func TestSecondFrontViewRejected(t *testing.T) {
	env := newTestEnv(t, 10)
	product := env.createProduct(t)

	if _, err := env.svc.GenerateFrontView(env.ctx, domain.GenerateFrontViewRequest{ProductID: product.ID.String(), Prompt: "tote"}); err != nil {
		t.Fatalf("first front view: %v", err)
	}
	_, err := env.svc.GenerateFrontView(env.ctx, domain.GenerateFrontViewRequest{ProductID: product.ID.String(), Prompt: "tote"})
	if !errors.Is(err, domain.ErrFrontViewExists) {
		t.Fatalf("err = %v, want ErrFrontViewExists", err)
	}
	if got := env.balance(t); got != 8 {
		t.Fatalf("balance = %d, want 8 (rejection costs nothing)", got)
	}
}

func TestRemainingViewsRequireApprovedFrontView(t *testing.T) {
	env := newTestEnv(t, 10)
	product := env.createProduct(t)

	_, err := env.svc.GenerateRemainingViews(env.ctx, domain.StageRequest{ProductID: product.ID.String()})
	if !errors.Is(err, domain.ErrFrontViewNotApproved) {
		t.Fatalf("err = %v, want ErrFrontViewNotApproved", err)
	}
	if got := env.balance(t); got != 10 {
		t.Fatalf("balance = %d, want 10 (validation must not touch credits)", got)
	}
}

func TestRevisionLoopKeepsSingleApproval(t *testing.T) {
	env := newTestEnv(t, 20)
	product := env.createProduct(t)

	if _, err := env.svc.GenerateFrontView(env.ctx, domain.GenerateFrontViewRequest{ProductID: product.ID.String(), Prompt: "tote"}); err != nil {
		t.Fatalf("front view: %v", err)
	}

	var record approvaldomain.ApprovalRecord
	if err := env.db.Where("product_id = ?", product.ID).First(&record).Error; err != nil {
		t.Fatalf("load approval: %v", err)
	}
	if err := env.svc.Decide(env.ctx, domain.DecideRequest{
		ApprovalID: record.ID.String(),
		Decision:   domain.DecisionRevisionRequested,
		Feedback:   "make the straps darker",
	}); err != nil {
		t.Fatalf("decide revision: %v", err)
	}

	if _, err := env.svc.ReviseFrontView(env.ctx, domain.ReviseFrontViewRequest{ProductID: product.ID.String()}); err != nil {
		t.Fatalf("revise: %v", err)
	}

	var approvalCount int64
	if err := env.db.Model(&approvaldomain.ApprovalRecord{}).Where("product_id = ?", product.ID).Count(&approvalCount).Error; err != nil {
		t.Fatalf("count approvals: %v", err)
	}
	if approvalCount != 1 {
		t.Fatalf("approvals = %d, want exactly 1", approvalCount)
	}

	var revised approvaldomain.ApprovalRecord
	if err := env.db.Where("product_id = ?", product.ID).First(&revised).Error; err != nil {
		t.Fatalf("reload approval: %v", err)
	}
	if revised.Status != approvaldomain.StatusPending {
		t.Fatalf("approval status = %s, want pending after revision", revised.Status)
	}

	var frontViews []domain.ProductView
	if err := env.db.Where("product_id = ? AND kind = ?", product.ID, domain.ViewKindFront).Order("revision ASC").Find(&frontViews).Error; err != nil {
		t.Fatalf("load views: %v", err)
	}
	if len(frontViews) != 2 || frontViews[1].Revision != 2 {
		t.Fatalf("front views = %d (last revision %d), want 2 with revision 2", len(frontViews), frontViews[len(frontViews)-1].Revision)
	}

	// Two front view generations at 2 credits each.
	if got := env.balance(t); got != 16 {
		t.Fatalf("balance = %d, want 16", got)
	}
}

func TestApprovalUnlocksRemainingViews(t *testing.T) {
	env := newTestEnv(t, 10)
	product := env.createProduct(t)

	if _, err := env.svc.GenerateFrontView(env.ctx, domain.GenerateFrontViewRequest{ProductID: product.ID.String(), Prompt: "tote"}); err != nil {
		t.Fatalf("front view: %v", err)
	}
	var record approvaldomain.ApprovalRecord
	if err := env.db.Where("product_id = ?", product.ID).First(&record).Error; err != nil {
		t.Fatalf("load approval: %v", err)
	}
	if err := env.svc.Decide(env.ctx, domain.DecideRequest{ApprovalID: record.ID.String(), Decision: domain.DecisionApproved}); err != nil {
		t.Fatalf("decide approved: %v", err)
	}

	result, err := env.svc.GenerateRemainingViews(env.ctx, domain.StageRequest{ProductID: product.ID.String()})
	if err != nil {
		t.Fatalf("remaining views: %v", err)
	}
	if len(result.Views) != 3 {
		t.Fatalf("views = %d, want 3", len(result.Views))
	}
	if got := env.productState(t, product.ID); got != productdomain.StateBaseViewsReady {
		t.Fatalf("state = %s, want base_views_ready", got)
	}
	// 10 - 2 (front) - 4 (remaining)
	if got := env.balance(t); got != 4 {
		t.Fatalf("balance = %d, want 4", got)
	}
}

func TestDecideScopedToOwner(t *testing.T) {
	env := newTestEnv(t, 10)
	product := env.createProduct(t)

	if _, err := env.svc.GenerateFrontView(env.ctx, domain.GenerateFrontViewRequest{ProductID: product.ID.String(), Prompt: "tote"}); err != nil {
		t.Fatalf("front view: %v", err)
	}
	var record approvaldomain.ApprovalRecord
	if err := env.db.Where("product_id = ?", product.ID).First(&record).Error; err != nil {
		t.Fatalf("load approval: %v", err)
	}

	stranger := usercontext.WithUserID(context.Background(), snowflake.ID(777))
	err := env.svc.Decide(stranger, domain.DecideRequest{ApprovalID: record.ID.String(), Decision: domain.DecisionApproved})
	if !errors.Is(err, approvaldomain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for non-owner", err)
	}

	if got := env.productState(t, product.ID); got != productdomain.StatePendingApproval {
		t.Fatalf("state = %s, want pending_approval untouched", got)
	}
	var reloaded approvaldomain.ApprovalRecord
	if err := env.db.Where("id = ?", record.ID).First(&reloaded).Error; err != nil {
		t.Fatalf("reload approval: %v", err)
	}
	if reloaded.Status != approvaldomain.StatusPending {
		t.Fatalf("approval status = %s, want pending untouched", reloaded.Status)
	}
}

func TestRemainingViewsRunOnlyOnce(t *testing.T) {
	env := newTestEnv(t, 20)
	product := env.createProduct(t)
	env.approveWithURL(t, product.ID, "https://images.test/front.png")

	for _, state := range []productdomain.State{productdomain.StateBaseViewsReady, productdomain.StateEnriched} {
		env.setProductState(t, product.ID, state)

		_, err := env.svc.GenerateRemainingViews(env.ctx, domain.StageRequest{ProductID: product.ID.String()})
		if !errors.Is(err, domain.ErrBaseViewsExist) {
			t.Fatalf("state %s: err = %v, want ErrBaseViewsExist", state, err)
		}
		if got := env.productState(t, product.ID); got != state {
			t.Fatalf("state regressed from %s to %s", state, got)
		}
		if got := env.balance(t); got != 20 {
			t.Fatalf("state %s: balance = %d, want 20 (re-run must not charge)", state, got)
		}
	}
}

func TestDecideApprovedTwiceConflicts(t *testing.T) {
	env := newTestEnv(t, 10)
	product := env.createProduct(t)

	if _, err := env.svc.GenerateFrontView(env.ctx, domain.GenerateFrontViewRequest{ProductID: product.ID.String(), Prompt: "tote"}); err != nil {
		t.Fatalf("front view: %v", err)
	}
	var record approvaldomain.ApprovalRecord
	if err := env.db.Where("product_id = ?", product.ID).First(&record).Error; err != nil {
		t.Fatalf("load approval: %v", err)
	}
	if err := env.svc.Decide(env.ctx, domain.DecideRequest{ApprovalID: record.ID.String(), Decision: domain.DecisionApproved}); err != nil {
		t.Fatalf("first decide: %v", err)
	}
	err := env.svc.Decide(env.ctx, domain.DecideRequest{ApprovalID: record.ID.String(), Decision: domain.DecisionApproved})
	if !errors.Is(err, approvaldomain.ErrAlreadyApproved) {
		t.Fatalf("err = %v, want ErrAlreadyApproved", err)
	}
}

func TestSketchesWithExactBalance(t *testing.T) {
	env := newTestEnv(t, 6)
	product := env.createProduct(t)
	env.setProductState(t, product.ID, productdomain.StateBaseViewsReady)
	env.approveWithURL(t, product.ID, "https://images.test/front.png")

	result, err := env.svc.GenerateSketches(env.ctx, domain.StageRequest{ProductID: product.ID.String()})
	if err != nil {
		t.Fatalf("sketches: %v", err)
	}
	if len(result.Views) != 3 {
		t.Fatalf("sketches = %d, want 3", len(result.Views))
	}
	if got := env.balance(t); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}

	var refunds int64
	if err := env.db.Model(&creditsdomain.CreditReservation{}).
		Where("status = ?", creditsdomain.ReservationStatusRefunded).
		Count(&refunds).Error; err != nil {
		t.Fatalf("count refunds: %v", err)
	}
	if refunds != 0 {
		t.Fatalf("refunds = %d, want 0", refunds)
	}
}

func TestCloseupsInsufficientCredits(t *testing.T) {
	env := newTestEnv(t, 1)
	product := env.createProduct(t)
	env.setProductState(t, product.ID, productdomain.StateBaseViewsReady)
	env.approveWithURL(t, product.ID, "https://images.test/front.png")

	_, err := env.svc.GenerateCloseups(env.ctx, domain.StageRequest{ProductID: product.ID.String()})
	if !errors.Is(err, creditsdomain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if got := env.balance(t); got != 1 {
		t.Fatalf("balance = %d, want 1", got)
	}
}

func TestComponentsMidBatchFailureRefundsWholeStage(t *testing.T) {
	env := newTestEnv(t, 10)
	product := env.createProduct(t)
	env.setProductState(t, product.ID, productdomain.StateBaseViewsReady)
	env.approveWithURL(t, product.ID, "https://images.test/front.png")
	env.provider.failOn = 2

	_, err := env.svc.GenerateComponents(env.ctx, domain.StageRequest{ProductID: product.ID.String()})
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if got := env.balance(t); got != 10 {
		t.Fatalf("balance = %d, want 10 after full refund", got)
	}

	var componentViews int64
	if err := env.db.Model(&domain.ProductView{}).
		Where("kind = ?", domain.ViewKindComponent).
		Count(&componentViews).Error; err != nil {
		t.Fatalf("count component views: %v", err)
	}
	if componentViews != 0 {
		t.Fatalf("component views = %d, want 0 (no partial batch)", componentViews)
	}
}

func TestEnrichStagesRequireBaseViews(t *testing.T) {
	env := newTestEnv(t, 10)
	product := env.createProduct(t)

	for name, call := range map[string]func() (*domain.StageResult, error){
		"closeups":   func() (*domain.StageResult, error) { return env.svc.GenerateCloseups(env.ctx, domain.StageRequest{ProductID: product.ID.String()}) },
		"components": func() (*domain.StageResult, error) { return env.svc.GenerateComponents(env.ctx, domain.StageRequest{ProductID: product.ID.String()}) },
		"sketches":   func() (*domain.StageResult, error) { return env.svc.GenerateSketches(env.ctx, domain.StageRequest{ProductID: product.ID.String()}) },
	} {
		if _, err := call(); !errors.Is(err, domain.ErrBaseViewsNotReady) {
			t.Fatalf("%s: err = %v, want ErrBaseViewsNotReady", name, err)
		}
	}
	if got := env.balance(t); got != 10 {
		t.Fatalf("balance = %d, want 10", got)
	}
}

func TestListViewsScopedToOwner(t *testing.T) {
	env := newTestEnv(t, 10)
	product := env.createProduct(t)

	if _, err := env.svc.GenerateFrontView(env.ctx, domain.GenerateFrontViewRequest{ProductID: product.ID.String(), Prompt: "tote"}); err != nil {
		t.Fatalf("front view: %v", err)
	}

	views, err := env.svc.ListViews(env.ctx, product.ID)
	if err != nil {
		t.Fatalf("list views: %v", err)
	}
	if len(views) != 1 || views[0].Kind != domain.ViewKindFront {
		t.Fatalf("views = %+v, want one front view", views)
	}

	stranger := usercontext.WithUserID(context.Background(), snowflake.ID(777))
	if _, err := env.svc.ListViews(stranger, product.ID); !errors.Is(err, productdomain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for non-owner", err)
	}
}
