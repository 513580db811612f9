package middleware

import (
	"errors"
	"net/http"

	"pdf-rag-platform/internal/auth"
	"pdf-rag-platform/internal/logger"
	"pdf-rag-platform/utils"

	"github.com/gin-gonic/gin"
)

const (
	claimsKey   = "claims"
	tenantIDKey = "tenant_id"
)

type AuthMiddleware struct {
	tokens *auth.TokenManager
}

func NewAuthMiddleware(tokens *auth.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireTenant rejects requests without a valid tenant token and exposes
// the tenant id to handlers through GetTenantID.
func (a *AuthMiddleware) RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			c.Abort()
			return
		}

		claims, err := a.tokens.ValidateAccessToken(c.Request.Context(), tokenString)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenRevoked):
				utils.RespondWithError(c, http.StatusUnauthorized, "token_revoked", "Token has been revoked", nil)
			case errors.Is(err, auth.ErrInvalidToken):
				utils.RespondWithUnauthorized(c, "Invalid or expired token")
			default:
				logger.Error("Token validation failed", "error", err, "request_id", GetRequestID(c))
				utils.RespondWithUnavailable(c, "auth_unavailable", "Unable to validate token")
			}
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Set(tenantIDKey, claims.TenantID)
		c.Next()
	}
}

func GetTenantID(c *gin.Context) string {
	if v, ok := c.Get(tenantIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}
