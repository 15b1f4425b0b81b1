package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"greendrake/trueque/internal/auth"
)

const (
	// ContextKeyUserID holds the key for user ID in Gin context.
	ContextKeyUserID = "userID"
	// ContextKeyIsModerator holds the key for moderator status in Gin context.
	ContextKeyIsModerator = "isModerator"
)

func bearerToken(c *gin.Context) (string, bool, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false, nil
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", true, fmt.Errorf("Authorization header format must be Bearer {token}")
	}
	return parts[1], true, nil
}

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, present, err := bearerToken(c)
		if !present {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := auth.ValidateJWT(tokenString, jwtSecret)
		if err != nil {
			errMsg := fmt.Sprintf("Invalid or expired token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsg})
			return
		}

		// Set user info in context for handlers to use
		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyIsModerator, claims.IsModerator)

		c.Next()
	}
}

// OptionalAuthMiddleware sets the user when a valid bearer token is sent and
// lets anonymous requests through. A malformed or invalid token is still rejected.
func OptionalAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, present, err := bearerToken(c)
		if !present {
			c.Next()
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		claims, err := auth.ValidateJWT(tokenString, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": fmt.Sprintf("Invalid or expired token: %v", err)})
			return
		}
		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyIsModerator, claims.IsModerator)
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}
