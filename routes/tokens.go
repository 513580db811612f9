package routes

import (
	"net/http"

	"pdf-rag-platform/internal/auth"
	"pdf-rag-platform/internal/logger"
	"pdf-rag-platform/middleware"
	"pdf-rag-platform/utils"

	"github.com/gin-gonic/gin"
)

// SetupTokenRoutes registers self-service token revocation.
func SetupTokenRoutes(router *gin.Engine, tokens *auth.TokenManager, authMiddleware *middleware.AuthMiddleware) {
	api := router.Group("/api/v1/tokens")
	api.Use(authMiddleware.RequireTenant())

	api.POST("/revoke", func(c *gin.Context) {
		claims := middleware.GetClaims(c)
		if claims == nil {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			return
		}

		if err := tokens.RevokeToken(c.Request.Context(), claims); err != nil {
			logger.Error("Token revocation failed", "error", err, "tenant_id", claims.TenantID)
			utils.RespondWithUnavailable(c, "revocation_failed", "Unable to revoke token")
			return
		}

		c.JSON(http.StatusOK, gin.H{"revoked": true, "token_id": claims.ID})
	})
}
