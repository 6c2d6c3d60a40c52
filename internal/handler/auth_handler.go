package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/middleware"
	"github.com/stemsi/exstem-assess/internal/response"
	"github.com/stemsi/exstem-assess/internal/service"
)

// AuthHandler serves the caller's identity endpoints. Credentials are
// handled by the identity provider; this service only checks tokens.
type AuthHandler struct {
	authService         *service.AuthService
	notificationService *service.NotificationService
	clock               service.Clock
	log                 zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	authService *service.AuthService,
	notificationService *service.NotificationService,
	clock service.Clock,
	log zerolog.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:         authService,
		notificationService: notificationService,
		clock:               clock,
		log:                 log.With().Str("component", "auth_handler").Logger(),
	}
}

// Me godoc
// GET /api/v1/auth/me
// Returns the identity carried by the token.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var expiresAt any
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	response.Success(c, http.StatusOK, gin.H{
		"user": gin.H{
			"id":   claims.UserID,
			"role": claims.Role,
		},
		"expires_at": expiresAt,
	})
}

// Logout godoc
// POST /api/v1/auth/logout
// Revokes the current token for the rest of its lifetime.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.Revoke(c.Request.Context(), claims, h.clock.Now()); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// Notifications godoc
// GET /api/v1/auth/me/notifications?limit=20
func (h *AuthHandler) Notifications(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, err := h.notificationService.ListMine(c.Request.Context(), actor, limit)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"notifications": list})
}
