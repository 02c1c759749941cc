// README: Firebase bearer-token auth; exposes the caller's uid, role and entity ID to handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"streeteats/internal/infra"
)

const (
	keyUID    = "auth.uid"
	keyRole   = "auth.role"
	keyEntity = "auth.entity"
)

// Auth verifies the Authorization: Bearer <ID token> header. The role claim
// defaults to customer; entity_id names the vendor or partner document the user
// acts for and defaults to the uid.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			unauthorized(c, "missing bearer token")
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil || token.UID == "" {
			unauthorized(c, "invalid token")
			return
		}

		role := "customer"
		if v, ok := token.Claims["role"].(string); ok && v != "" {
			role = v
		}
		entity := token.UID
		if v, ok := token.Claims["entity_id"].(string); ok && v != "" {
			entity = v
		}
		c.Set(keyUID, token.UID)
		c.Set(keyRole, role)
		c.Set(keyEntity, entity)
		c.Next()
	}
}

// TokenFromQuery copies ?token= into the Authorization header when the header is
// absent. Browsers cannot set headers on EventSource requests.
func TokenFromQuery() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			if t := c.Query("token"); t != "" {
				c.Request.Header.Set("Authorization", "Bearer "+t)
			}
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": msg})
}

func CallerUID(c *gin.Context) string    { return c.GetString(keyUID) }
func CallerRole(c *gin.Context) string   { return c.GetString(keyRole) }
func CallerEntity(c *gin.Context) string { return c.GetString(keyEntity) }
