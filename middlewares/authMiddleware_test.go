package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(seen **models.AccessScope) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/whoami", func(c *gin.Context) {
		*seen = ScopeValue(c)
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthMiddlewareSetsScope(t *testing.T) {
	t.Setenv("API_SECRET", "test-secret")
	token, err := utils.JwtGenerate(9, "Mya", []string{models.RoleStoreManager}, 4)
	require.NoError(t, err)

	var scope *models.AccessScope
	r := newAuthRouter(&scope)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, scope)
	assert.Equal(t, 9, scope.UserId)
	assert.True(t, scope.IsManager())
	assert.False(t, scope.AllLocations)
	assert.Equal(t, 4, scope.ScopeLocationId())
}

func TestAuthMiddlewareRejects(t *testing.T) {
	t.Setenv("API_SECRET", "another-secret")
	other, err := utils.JwtGenerate(1, "x", []string{models.RoleAdmin}, 0)
	require.NoError(t, err)
	t.Setenv("API_SECRET", "test-secret")

	tests := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"garbage token":  "Bearer not-a-jwt",
		"wrong secret":   "Bearer " + other,
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			var scope *models.AccessScope
			r := newAuthRouter(&scope)
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Nil(t, scope)
		})
	}
}

func TestCustomerTokenIsCustomerOnly(t *testing.T) {
	t.Setenv("API_SECRET", "test-secret")
	token, err := utils.JwtGenerate(21, "Customer", []string{models.RoleCustomer}, 0)
	require.NoError(t, err)

	var scope *models.AccessScope
	r := newAuthRouter(&scope)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.NotNil(t, scope)
	assert.True(t, scope.CustomerOnly)
	assert.False(t, scope.IsStaff())
}
