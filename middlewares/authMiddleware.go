package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils"
)

// AuthMiddleware turns the bearer token into the request's access scope. Requests without a token
// are rejected; there is no anonymous access to the back office.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		const bearer = "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		token := strings.TrimSpace(auth[len(bearer):])

		claim, err := utils.JwtValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		scope := models.NewAccessScope(claim.ID, claim.Name, claim.Roles, claim.LocationId)
		scope.Email = claim.Email
		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = models.WithAccessScope(ctx, scope)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func ScopeValue(c *gin.Context) *models.AccessScope {
	return models.ScopeFromContext(c.Request.Context())
}
