package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/response"
	"github.com/stemsi/exstem-assess/internal/service"
)

// RejectRevokedTokens rejects requests whose token id was revoked by logout.
// A denylist outage is logged and the request allowed through.
func RejectRevokedTokens(authService *service.AuthService, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "session_middleware").Logger()
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if err := authService.CheckRevoked(c.Request.Context(), claims); err != nil {
			if errors.Is(err, service.ErrTokenRevoked) {
				response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRevoked)
				return
			}
			log.Warn().Err(err).Str("jti", claims.ID).Msg("Revocation check failed")
		}

		c.Next()
	}
}
