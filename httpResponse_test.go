package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", utils.NewValidationError("quantity must be positive"), http.StatusUnprocessableEntity},
		{"shortage", utils.NewShortageError("insufficient stock", []utils.Shortage{{ItemId: 1}}), http.StatusUnprocessableEntity},
		{"conflict", utils.NewConflictError("order", 1, "Confirmed", "Shipped"), http.StatusConflict},
		{"forbidden", models.ErrForbidden, http.StatusForbidden},
		{"wrapped forbidden", fmt.Errorf("location 3: %w", models.ErrForbidden), http.StatusForbidden},
		{"internal wraps forbidden", utils.Internal("GetOrder", models.ErrForbidden), http.StatusForbidden},
		{"plain", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}

func serveError(t *testing.T, err error) (*httptest.ResponseRecorder, errorResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/fail", func(c *gin.Context) {
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), "corr-9"))
		respondError(c, "testHandler", err)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRespondErrorShortages(t *testing.T) {
	w, body := serveError(t, utils.NewShortageError("insufficient stock", []utils.Shortage{
		{ItemId: 5, LocationId: 1, Required: decimal.NewFromInt(10), Available: decimal.NewFromInt(3)},
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "insufficient stock", body.Error)
	require.Len(t, body.Shortages, 1)
	assert.Equal(t, 5, body.Shortages[0].ItemId)
	assert.True(t, body.Shortages[0].Available.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, "corr-9", body.CorrelationId)
}

func TestRespondErrorConflict(t *testing.T) {
	w, body := serveError(t, utils.NewConflictError("order", 12, "Confirmed", "Cancelled"))
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, body.Conflict)
	assert.Equal(t, 12, body.Conflict.EntityId)
	assert.Equal(t, "Cancelled", body.Conflict.Actual)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	w, body := serveError(t, errors.New("dial tcp 10.0.0.3:3306: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", body.Error)
}

func TestParamId(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/orders/:id", func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	for path, want := range map[string]int{"/orders/17": http.StatusOK, "/orders/abc": http.StatusBadRequest, "/orders/0": http.StatusBadRequest} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}
