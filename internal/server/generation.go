package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	generationdomain "github.com/genpire/genpire/internal/generation/domain"
)

type generateFrontViewRequest struct {
	ProductID string `json:"product_id"`
	Prompt    string `json:"prompt"`
	SketchURL string `json:"sketch_url"`
	LogoURL   string `json:"logo_url"`
}

func (s *Server) GenerateFrontView(c *gin.Context) {
	var req generateFrontViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		AbortWithError(c, newValidationError("product_id", "required", "product_id is required"))
		return
	}
	s.annotateStage(c, req.ProductID, generationdomain.StageFrontView)

	resp, err := s.generationSvc.GenerateFrontView(c.Request.Context(), generationdomain.GenerateFrontViewRequest{
		ProductID: strings.TrimSpace(req.ProductID),
		Prompt:    strings.TrimSpace(req.Prompt),
		SketchURL: strings.TrimSpace(req.SketchURL),
		LogoURL:   strings.TrimSpace(req.LogoURL),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type reviseFrontViewRequest struct {
	ProductID string `json:"product_id"`
	Feedback  string `json:"feedback"`
}

func (s *Server) ReviseFrontView(c *gin.Context) {
	var req reviseFrontViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		AbortWithError(c, newValidationError("product_id", "required", "product_id is required"))
		return
	}
	s.annotateStage(c, req.ProductID, generationdomain.StageFrontView)

	resp, err := s.generationSvc.ReviseFrontView(c.Request.Context(), generationdomain.ReviseFrontViewRequest{
		ProductID: strings.TrimSpace(req.ProductID),
		Feedback:  strings.TrimSpace(req.Feedback),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type decideApprovalRequest struct {
	Decision string `json:"decision"`
	Feedback string `json:"feedback"`
}

func (s *Server) DecideApproval(c *gin.Context) {
	var req decideApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.generationSvc.Decide(c.Request.Context(), generationdomain.DecideRequest{
		ApprovalID: strings.TrimSpace(c.Param("id")),
		Decision:   strings.TrimSpace(req.Decision),
		Feedback:   strings.TrimSpace(req.Feedback),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) GenerateRemainingViews(c *gin.Context) {
	s.handleStage(c, generationdomain.StageRemainingViews, s.generationSvc.GenerateRemainingViews)
}

func (s *Server) GenerateCloseups(c *gin.Context) {
	s.handleStage(c, generationdomain.StageCloseups, s.generationSvc.GenerateCloseups)
}

func (s *Server) GenerateComponents(c *gin.Context) {
	s.handleStage(c, generationdomain.StageComponents, s.generationSvc.GenerateComponents)
}

func (s *Server) GenerateSketches(c *gin.Context) {
	s.handleStage(c, generationdomain.StageSketches, s.generationSvc.GenerateSketches)
}

type stageRequest struct {
	ProductID string `json:"product_id"`
}

type stageFn func(ctx context.Context, req generationdomain.StageRequest) (*generationdomain.StageResult, error)

func (s *Server) handleStage(c *gin.Context, stage generationdomain.Stage, fn stageFn) {
	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		AbortWithError(c, newValidationError("product_id", "required", "product_id is required"))
		return
	}
	s.annotateStage(c, req.ProductID, stage)

	resp, err := fn(c.Request.Context(), generationdomain.StageRequest{
		ProductID: strings.TrimSpace(req.ProductID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// annotateStage feeds the request logger's product/stage fields.
func (s *Server) annotateStage(c *gin.Context, productID string, stage generationdomain.Stage) {
	c.Set("product_id", strings.TrimSpace(productID))
	c.Set("generation_stage", string(stage))
}
