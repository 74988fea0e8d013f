package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"roombot/internal/core/services"
)

const claimsKey = "claims"

// AuthMiddleware requires a bearer token carrying scope. Validated claims
// are stored on the gin context and on the request context.
func AuthMiddleware(authService services.AuthService, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		kind, token, ok := strings.Cut(authHeader, " ")
		if !ok || kind != "Bearer" || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		if err := authService.CheckScope(claims, scope); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient scope"})
			return
		}

		c.Set(claimsKey, claims)
		c.Request = c.Request.WithContext(services.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// Subject returns the token subject set by AuthMiddleware, or "".
func Subject(c *gin.Context) string {
	v, ok := c.Get(claimsKey)
	if !ok {
		return ""
	}
	claims, ok := v.(*services.Claims)
	if !ok {
		return ""
	}
	return claims.Subject
}
