package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/genpire/genpire/internal/product/domain"
	"github.com/genpire/genpire/internal/product/repository"
	"github.com/genpire/genpire/internal/usercontext"
)

func newTestService(t *testing.T) (domain.Service, snowflake.ID, context.Context) {
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
	if err := db.AutoMigrate(&domain.Product{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})

	userID := node.Generate()
	return svc, userID, usercontext.WithUserID(context.Background(), userID)
}

func TestCreateTrimsAndSlugifies(t *testing.T) {
	svc, userID, ctx := newTestService(t)

	product, err := svc.Create(ctx, domain.CreateProductRequest{
		Name:        "  Denim Trucker Jacket  ",
		Category:    " outerwear ",
		Description: "oversized fit",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if product.Name != "Denim Trucker Jacket" {
		t.Fatalf("name = %q", product.Name)
	}
	if product.Slug != "denim-trucker-jacket" {
		t.Fatalf("slug = %q", product.Slug)
	}
	if product.Category != "outerwear" {
		t.Fatalf("category = %q", product.Category)
	}
	if product.UserID != userID {
		t.Fatalf("user = %s, want %s", product.UserID, userID)
	}
	if product.State != domain.StateNoFrontView {
		t.Fatalf("state = %q", product.State)
	}
}

func TestCreateRejectsBlankName(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.Create(ctx, domain.CreateProductRequest{Name: "   "})
	if !errors.Is(err, domain.ErrInvalidName) {
		t.Fatalf("err = %v, want ErrInvalidName", err)
	}
}

func TestCreateRequiresUserContext(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), domain.CreateProductRequest{Name: "Denim Jacket"})
	if !errors.Is(err, domain.ErrInvalidUser) {
		t.Fatalf("err = %v, want ErrInvalidUser", err)
	}
}

func TestCreateDuplicateSlugPerUser(t *testing.T) {
	svc, _, ctx := newTestService(t)

	if _, err := svc.Create(ctx, domain.CreateProductRequest{Name: "Denim Jacket"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(ctx, domain.CreateProductRequest{Name: "Denim Jacket"})
	if !errors.Is(err, domain.ErrDuplicateSlug) {
		t.Fatalf("err = %v, want ErrDuplicateSlug", err)
	}

	// The slug is only unique within one creator's catalog.
	otherCtx := usercontext.WithUserID(context.Background(), snowflake.ID(9009))
	if _, err := svc.Create(otherCtx, domain.CreateProductRequest{Name: "Denim Jacket"}); err != nil {
		t.Fatalf("other user create: %v", err)
	}
}

func TestGetByIDScopedToOwner(t *testing.T) {
	svc, _, ctx := newTestService(t)

	created, err := svc.Create(ctx, domain.CreateProductRequest{Name: "Denim Jacket"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.GetByID(ctx, domain.GetProductRequest{ID: created.ID.String()})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("id = %s, want %s", got.ID, created.ID)
	}

	strangerCtx := usercontext.WithUserID(context.Background(), snowflake.ID(9009))
	if _, err := svc.GetByID(strangerCtx, domain.GetProductRequest{ID: created.ID.String()}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("stranger err = %v, want ErrNotFound", err)
	}
}

func TestGetByIDRejectsMalformedID(t *testing.T) {
	svc, _, ctx := newTestService(t)

	for _, id := range []string{"", "  ", "not-a-number", "0"} {
		if _, err := svc.GetByID(ctx, domain.GetProductRequest{ID: id}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("id %q: err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestListPaginates(t *testing.T) {
	svc, _, ctx := newTestService(t)

	for _, name := range []string{"Jacket", "Hoodie", "Cargo Pants"} {
		if _, err := svc.Create(ctx, domain.CreateProductRequest{Name: name}); err != nil {
			t.Fatalf("create %q: %v", name, err)
		}
	}

	page, err := svc.List(ctx, domain.ListProductRequest{PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Products) != 2 {
		t.Fatalf("page size = %d, want 2", len(page.Products))
	}
	if !page.PageInfo.HasMore {
		t.Fatal("expected has_more on first page")
	}
	if page.PageInfo.NextPageToken == "" {
		t.Fatal("expected a next page token")
	}

	all, err := svc.List(ctx, domain.ListProductRequest{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all.Products) != 3 {
		t.Fatalf("total = %d, want 3", len(all.Products))
	}
	if all.PageInfo.HasMore {
		t.Fatal("did not expect has_more when everything fits")
	}
}

func TestListScopedToOwner(t *testing.T) {
	svc, _, ctx := newTestService(t)

	if _, err := svc.Create(ctx, domain.CreateProductRequest{Name: "Jacket"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	strangerCtx := usercontext.WithUserID(context.Background(), snowflake.ID(9009))
	page, err := svc.List(strangerCtx, domain.ListProductRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Products) != 0 {
		t.Fatalf("stranger sees %d products", len(page.Products))
	}
}

func TestSetStateAdvancesWorkflow(t *testing.T) {
	svc, _, ctx := newTestService(t)

	created, err := svc.Create(ctx, domain.CreateProductRequest{Name: "Jacket"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.SetState(ctx, created.ID, domain.StatePendingApproval); err != nil {
		t.Fatalf("set state: %v", err)
	}

	got, err := svc.GetByID(ctx, domain.GetProductRequest{ID: created.ID.String()})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != domain.StatePendingApproval {
		t.Fatalf("state = %q, want %q", got.State, domain.StatePendingApproval)
	}
}
