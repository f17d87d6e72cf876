package middleware

import (
	"net/http"
	"strings"

	"aibot/backend/internal/model"
	"aibot/backend/internal/util"
	"aibot/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware verifies the platform-issued bearer token and puts the
// caller identity on the context
func AuthMiddleware(verifier *jwt.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			util.AbortWithCustomError(c, http.StatusUnauthorized, util.ErrCodeUnauthorized, "Missing or malformed authorization header")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			util.AbortWithCustomError(c, http.StatusUnauthorized, util.ErrCodeTokenInvalid, "Invalid or expired token")
			return
		}

		principal := &model.Principal{
			UserID:   claims.UserID,
			Username: claims.Username,
			Role:     claims.Role,
		}
		c.Set("user_id", principal.UserID)
		c.Set("username", principal.Username)
		c.Set("user_role", principal.Role)
		c.Set("principal", principal)

		c.Next()
	}
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
// Browsers cannot set headers on WebSocket upgrades, so a "token" query
// parameter is accepted there.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if c.IsWebsocket() {
			if t := c.Query("token"); t != "" {
				return t, true
			}
		}
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// RequireAdmin middleware requires admin role
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("user_role")
		if !exists {
			util.AbortWithCustomError(c, http.StatusUnauthorized, util.ErrCodeUnauthorized, "Authentication required")
			return
		}

		if role != model.RoleAdmin {
			util.AbortWithCustomError(c, http.StatusForbidden, util.ErrCodeForbidden, "Admin access required")
			return
		}

		c.Next()
	}
}
