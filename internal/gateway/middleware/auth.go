package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"branchpos/internal/database/models"
	"branchpos/internal/pos"
	"branchpos/internal/utils"
)

const actorKey = "actor"

// Auth parses the bearer token and stores the resolved operator identity in
// the request context. Handlers retrieve it with ActorFrom.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Missing or malformed Authorization header",
			})
			return
		}

		claims, err := utils.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(actorKey, pos.ActorContext{
			ID:       claims.UserId,
			Name:     claims.Username,
			Role:     models.Role(claims.Role),
			BranchId: claims.BranchId,
		})
		c.Next()
	}
}

func ActorFrom(c *gin.Context) (pos.ActorContext, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return pos.ActorContext{}, false
	}
	actor, ok := v.(pos.ActorContext)
	return actor, ok
}

// RequireRoles rejects requests whose operator role is not in the allowed
// set. Must run after Auth.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok || !allowed[actor.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "Insufficient permissions",
			})
			return
		}
		c.Next()
	}
}
