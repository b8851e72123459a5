package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"stockcore-system/internal/auth"
)

const identityKey = "identity"

// Identity is the caller context every protected handler reads. The core
// engine trusts these values; validation happens here and nowhere deeper.
type Identity struct {
	TenantID string
	UserID   string
	Username string
}

func JWTAuth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "missing bearer token",
			})
			return
		}

		claims, err := tokens.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid token",
			})
			return
		}

		c.Set(identityKey, Identity{
			TenantID: claims.TenantID,
			UserID:   claims.UserID,
			Username: claims.Username,
		})
		c.Next()
	}
}

// IdentityFrom returns the identity set by JWTAuth; the zero value means the
// route was not protected.
func IdentityFrom(c *gin.Context) Identity {
	id, _ := c.Get(identityKey)
	identity, _ := id.(Identity)
	return identity
}
