package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/genpire/genpire/internal/auth/session"
	"github.com/genpire/genpire/internal/config"
	creditsdomain "github.com/genpire/genpire/internal/credits/domain"
	generationdomain "github.com/genpire/genpire/internal/generation/domain"
	"github.com/genpire/genpire/internal/payments"
	productdomain "github.com/genpire/genpire/internal/product/domain"
	techpackdomain "github.com/genpire/genpire/internal/techpack/domain"
	"github.com/genpire/genpire/internal/usercontext"
)

type fakeCreditsService struct {
	creditsdomain.Service

	balance *creditsdomain.CreditBalance
	grants  []creditsdomain.GrantRequest
}

func (f *fakeCreditsService) Balance(ctx context.Context, userID snowflake.ID) (*creditsdomain.CreditBalance, error) {
	if f.balance == nil {
		return nil, creditsdomain.ErrBalanceNotFound
	}
	return f.balance, nil
}

func (f *fakeCreditsService) Grant(ctx context.Context, req creditsdomain.GrantRequest) error {
	f.grants = append(f.grants, req)
	return nil
}

type fakeProductService struct {
	productdomain.Service

	created []productdomain.CreateProductRequest
	err     error
}

func (f *fakeProductService) Create(ctx context.Context, req productdomain.CreateProductRequest) (productdomain.Product, error) {
	if f.err != nil {
		return productdomain.Product{}, f.err
	}
	if _, ok := usercontext.UserIDFromContext(ctx); !ok {
		return productdomain.Product{}, productdomain.ErrInvalidUser
	}
	f.created = append(f.created, req)
	return productdomain.Product{ID: 1, Name: req.Name}, nil
}

type fakeGenerationService struct {
	generationdomain.Service

	result    *generationdomain.StageResult
	err       error
	decideErr error
	decided   []generationdomain.DecideRequest
}

func (f *fakeGenerationService) GenerateFrontView(ctx context.Context, req generationdomain.GenerateFrontViewRequest) (*generationdomain.StageResult, error) {
	return f.result, f.err
}

func (f *fakeGenerationService) GenerateCloseups(ctx context.Context, req generationdomain.StageRequest) (*generationdomain.StageResult, error) {
	return f.result, f.err
}

func (f *fakeGenerationService) Decide(ctx context.Context, req generationdomain.DecideRequest) error {
	if f.decideErr != nil {
		return f.decideErr
	}
	f.decided = append(f.decided, req)
	return nil
}

type serverFixture struct {
	server     *Server
	sessions   *session.Manager
	credits    *fakeCreditsService
	products   *fakeProductService
	generation *fakeGenerationService
	userID     snowflake.ID
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{AuthJWTSecret: "test-secret"}
	cfg.Payments.WebhookSecret = "whsec_test"

	sessions := session.NewManager(cfg)
	credits := &fakeCreditsService{}
	products := &fakeProductService{}
	gen := &fakeGenerationService{}

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:           engine,
		Cfg:           cfg,
		Log:           zap.NewNop(),
		Sessions:      sessions,
		CreditsSvc:    credits,
		ProductSvc:    products,
		GenerationSvc: gen,
		TechpackSvc:   techpackdomain.Service(nil),
		PaymentsSvc: payments.New(payments.Params{
			Log:     zap.NewNop(),
			Config:  cfg,
			Costs:   config.NewStaticCostsHolder(config.DefaultCostsConfig()),
			Credits: credits,
		}),
	})

	return &serverFixture{
		server:     srv,
		sessions:   sessions,
		credits:    credits,
		products:   products,
		generation: gen,
		userID:     snowflake.ID(12345),
	}
}

func (f *serverFixture) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		token, err := f.sessions.Issue(f.userID, time.Now())
		if err != nil {
			t.Fatalf("issue session: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)
	return rec
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error.Type
}

func TestAuthRequiredRejectsMissingSession(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodGet, "/api/credits/balance", nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := errorType(t, rec); got != "unauthorized" {
		t.Fatalf("error type = %q, want unauthorized", got)
	}
}

func TestAuthRequiredRejectsBadToken(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/credits/balance", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGetCreditBalance(t *testing.T) {
	f := newTestServer(t)
	f.credits.balance = &creditsdomain.CreditBalance{
		UserID:     f.userID,
		Credits:    42,
		Status:     creditsdomain.BalanceStatusActive,
		Membership: creditsdomain.MembershipStarter,
	}

	rec := f.do(t, http.MethodGet, "/api/credits/balance", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data creditBalanceResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Credits != 42 || resp.Data.Membership != "starter" {
		t.Fatalf("balance = %+v", resp.Data)
	}
}

func TestGetCreditBalanceDefaultsToZero(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodGet, "/api/credits/balance", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data creditBalanceResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Credits != 0 || resp.Data.Membership != "free" {
		t.Fatalf("balance = %+v", resp.Data)
	}
}

func TestCreateProduct(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodPost, "/api/products", gin.H{"name": "Denim Jacket", "category": "outerwear"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(f.products.created) != 1 || f.products.created[0].Name != "Denim Jacket" {
		t.Fatalf("created = %+v", f.products.created)
	}
}

func TestCreateProductDuplicateSlugConflicts(t *testing.T) {
	f := newTestServer(t)
	f.products.err = productdomain.ErrDuplicateSlug

	rec := f.do(t, http.MethodPost, "/api/products", gin.H{"name": "Denim Jacket"}, true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestInsufficientCreditsMapsToPaymentRequired(t *testing.T) {
	f := newTestServer(t)
	f.generation.err = creditsdomain.ErrInsufficientCredits

	rec := f.do(t, http.MethodPost, "/api/generation/closeups", gin.H{"product_id": "123"}, true)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if got := errorType(t, rec); got != "insufficient_credits" {
		t.Fatalf("error type = %q, want insufficient_credits", got)
	}
}

func TestFrontViewExistsConflicts(t *testing.T) {
	f := newTestServer(t)
	f.generation.err = generationdomain.ErrFrontViewExists

	rec := f.do(t, http.MethodPost, "/api/generation/front-view", gin.H{"product_id": "123"}, true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRateLimitedMapsTo429(t *testing.T) {
	f := newTestServer(t)
	f.generation.err = generationdomain.ErrRateLimited

	rec := f.do(t, http.MethodPost, "/api/generation/closeups", gin.H{"product_id": "123"}, true)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestStageRequestRequiresProductID(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodPost, "/api/generation/closeups", gin.H{}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := errorType(t, rec); got != "validation_error" {
		t.Fatalf("error type = %q, want validation_error", got)
	}
}

func TestDecideApprovalPassesRouteParam(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodPost, "/api/approvals/987/decision", gin.H{"decision": "approved"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(f.generation.decided) != 1 || f.generation.decided[0].ApprovalID != "987" {
		t.Fatalf("decided = %+v", f.generation.decided)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newTestServer(t)
	payload := []byte(`{"id":"evt_1","type":"order.paid"}`)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhooks/polar", bytes.NewReader(payload))
	req.Header.Set(webhookSignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(f.credits.grants) != 0 {
		t.Fatalf("grants = %d, want 0", len(f.credits.grants))
	}
}

func TestWebhookGrantsCredits(t *testing.T) {
	f := newTestServer(t)
	payload := []byte(`{"id":"evt_1","type":"order.paid","data":{"order":{"customer_external_id":"12345","product_sku":"pack_starter"}}}`)

	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write(payload)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhooks/polar", bytes.NewReader(payload))
	req.Header.Set(webhookSignatureHeader, hex.EncodeToString(mac.Sum(nil)))
	rec := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(f.credits.grants) != 1 || f.credits.grants[0].Amount != 20 {
		t.Fatalf("grants = %+v", f.credits.grants)
	}
}
