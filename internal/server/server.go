package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/genpire/genpire/internal/approval"
	"github.com/genpire/genpire/internal/auth/session"
	"github.com/genpire/genpire/internal/cache"
	"github.com/genpire/genpire/internal/config"
	"github.com/genpire/genpire/internal/credits"
	creditsdomain "github.com/genpire/genpire/internal/credits/domain"
	"github.com/genpire/genpire/internal/generation"
	generationdomain "github.com/genpire/genpire/internal/generation/domain"
	"github.com/genpire/genpire/internal/observability"
	obsmiddleware "github.com/genpire/genpire/internal/observability/logger"
	obsmetrics "github.com/genpire/genpire/internal/observability/metrics"
	obstracing "github.com/genpire/genpire/internal/observability/tracing"
	"github.com/genpire/genpire/internal/payments"
	"github.com/genpire/genpire/internal/product"
	productdomain "github.com/genpire/genpire/internal/product/domain"
	"github.com/genpire/genpire/internal/providers"
	"github.com/genpire/genpire/internal/ratelimit"
	"github.com/genpire/genpire/internal/techpack"
	techpackdomain "github.com/genpire/genpire/internal/techpack/domain"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	session.Module,
	cache.Module,
	credits.Module,
	product.Module,
	approval.Module,
	providers.Module,
	ratelimit.Module,
	generation.Module,
	techpack.Module,
	payments.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	sessions      *session.Manager
	creditsSvc    creditsdomain.Service
	productSvc    productdomain.Service
	generationSvc generationdomain.Service
	techpackSvc   techpackdomain.Service
	paymentsSvc   *payments.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Sessions      *session.Manager
	CreditsSvc    creditsdomain.Service
	ProductSvc    productdomain.Service
	GenerationSvc generationdomain.Service
	TechpackSvc   techpackdomain.Service
	PaymentsSvc   *payments.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		sessions:      p.Sessions,
		creditsSvc:    p.CreditsSvc,
		productSvc:    p.ProductSvc,
		generationSvc: p.GenerationSvc,
		techpackSvc:   p.TechpackSvc,
		paymentsSvc:   p.PaymentsSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Payment Webhooks --------
	// Authenticated by HMAC signature, not by session.
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)

	// -------- Credits --------
	api.GET("/credits/balance", s.AuthRequired(), s.GetCreditBalance)

	// -------- Products --------
	api.POST("/products", s.AuthRequired(), s.CreateProduct)
	api.GET("/products", s.AuthRequired(), s.ListProducts)
	api.GET("/products/:id", s.AuthRequired(), s.GetProductByID)
	api.GET("/products/:id/views", s.AuthRequired(), s.ListProductViews)

	// -------- Generation workflow --------
	api.POST("/generation/front-view", s.AuthRequired(), s.GenerateFrontView)
	api.POST("/generation/front-view/revise", s.AuthRequired(), s.ReviseFrontView)
	api.POST("/generation/remaining-views", s.AuthRequired(), s.GenerateRemainingViews)
	api.POST("/generation/closeups", s.AuthRequired(), s.GenerateCloseups)
	api.POST("/generation/components", s.AuthRequired(), s.GenerateComponents)
	api.POST("/generation/sketches", s.AuthRequired(), s.GenerateSketches)

	// -------- Approvals --------
	api.POST("/approvals/:id/decision", s.AuthRequired(), s.DecideApproval)

	// -------- Tech packs --------
	api.POST("/products/:id/techpack", s.AuthRequired(), s.UpsertTechPack)
	api.GET("/products/:id/techpack", s.AuthRequired(), s.GetTechPack)
	api.GET("/products/:id/techpack/pdf", s.AuthRequired(), s.RenderTechPackPDF)
}
