package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func promoTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testdb.Open(t)
	require.NoError(t, models.AutoMigrateModels(db))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(models.WithAccessScope(c.Request.Context(), models.SystemScope()))
		c.Next()
	})
	r.POST("/promo-codes", createPromoCodeHandler(nil))
	return r, db
}

func postPromo(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/promo-codes", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestCreatePromoCodeHandler_BadRecipientLeavesNoCode(t *testing.T) {
	r, db := promoTestRouter(t)

	w := postPromo(r, `{"code":"vip","discount_type":"FixedAmount","discount_value":"10",
		"recipients":[{"user_id":5,"email":"not-an-email"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	var promos, recipients int64
	require.NoError(t, db.Model(&models.PromoCode{}).Count(&promos).Error)
	require.NoError(t, db.Model(&models.PromoCodeRecipient{}).Count(&recipients).Error)
	assert.Zero(t, promos, "a rejected recipient must not leave an open code behind")
	assert.Zero(t, recipients)
}

func TestCreatePromoCodeHandler_StoresRecipients(t *testing.T) {
	r, db := promoTestRouter(t)

	w := postPromo(r, `{"code":"vip","discount_type":"FixedAmount","discount_value":"10",
		"recipients":[{"user_id":5,"email":"ann@example.com"}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var stored []models.PromoCodeRecipient
	require.NoError(t, db.Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, 5, stored[0].UserId)
	assert.Equal(t, "ann@example.com", stored[0].Email)
}
