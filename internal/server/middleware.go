package server

import (
	"github.com/gin-gonic/gin"

	obscontext "github.com/genpire/genpire/internal/observability/context"
	"github.com/genpire/genpire/internal/usercontext"
)

// AuthRequired resolves the session token into a creator id and injects it
// into the request context. Downstream services scope every query by it.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID, err := s.sessions.Verify(token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := usercontext.WithUserID(c.Request.Context(), userID)
		ctx = obscontext.WithUserID(ctx, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
