package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	techpackdomain "github.com/genpire/genpire/internal/techpack/domain"
)

type upsertTechPackRequest struct {
	Summary string                 `json:"summary"`
	Details techpackdomain.Details `json:"details"`
}

func (s *Server) UpsertTechPack(c *gin.Context) {
	var req upsertTechPackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.techpackSvc.Upsert(c.Request.Context(), techpackdomain.UpsertTechPackRequest{
		ProductID: strings.TrimSpace(c.Param("id")),
		Summary:   strings.TrimSpace(req.Summary),
		Details:   req.Details,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTechPack(c *gin.Context) {
	resp, err := s.techpackSvc.GetByProduct(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RenderTechPackPDF(c *gin.Context) {
	reader, err := s.techpackSvc.RenderPDF(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `attachment; filename="techpack.pdf"`)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		s.log.Warn("techpack pdf stream interrupted")
	}
}
