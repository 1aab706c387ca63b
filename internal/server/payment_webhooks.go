package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const webhookSignatureHeader = "X-Webhook-Signature"

// HandlePaymentWebhook ingests a payment provider event. The raw body is read
// before parsing so the signature covers exactly the delivered bytes.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.paymentsSvc.VerifySignature(payload, c.GetHeader(webhookSignatureHeader)); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.paymentsSvc.HandleEvent(c.Request.Context(), provider, payload); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
