package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// TokenCookieName is the cookie that may carry the token instead of the Authorization header
	TokenCookieName = "auth_token"
	// OwnerIDKey is the gin context key holding the authenticated owner id
	OwnerIDKey = "owner_id"
)

// tokenFromRequest prefers the Authorization header over the cookie
func tokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := c.Cookie(TokenCookieName); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware validates the token and stores the owner id in the context
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		claims, err := ValidateToken(secret, token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired, please log in again"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			}
			c.Abort()
			return
		}

		c.Set(OwnerIDKey, claims.OwnerID())
		c.Next()
	}
}

// GetOwnerIDFromContext returns the owner id set by AuthMiddleware
func GetOwnerIDFromContext(c *gin.Context) (string, bool) {
	ownerID := c.GetString(OwnerIDKey)
	return ownerID, ownerID != ""
}
