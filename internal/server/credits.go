package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	creditsdomain "github.com/genpire/genpire/internal/credits/domain"
	"github.com/genpire/genpire/internal/usercontext"
)

type creditBalanceResponse struct {
	UserID     string `json:"user_id"`
	Credits    int64  `json:"credits"`
	Membership string `json:"membership"`
	Status     string `json:"status"`
}

func (s *Server) GetCreditBalance(c *gin.Context) {
	userID, ok := usercontext.UserIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	balance, err := s.creditsSvc.Balance(c.Request.Context(), userID)
	if err != nil {
		// Creators without a balance row simply have zero credits.
		if errors.Is(err, creditsdomain.ErrBalanceNotFound) {
			c.JSON(http.StatusOK, gin.H{"data": creditBalanceResponse{
				UserID:     userID.String(),
				Credits:    0,
				Membership: string(creditsdomain.MembershipFree),
				Status:     string(creditsdomain.BalanceStatusActive),
			}})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": creditBalanceResponse{
		UserID:     balance.UserID.String(),
		Credits:    balance.Credits,
		Membership: string(balance.Membership),
		Status:     string(balance.Status),
	}})
}
