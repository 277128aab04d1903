package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type errorResponse struct {
	Error         string               `json:"error"`
	Fields        map[string]string    `json:"fields,omitempty"`
	Shortages     []utils.Shortage     `json:"shortages,omitempty"`
	Conflict      *utils.ConflictError `json:"conflict,omitempty"`
	CorrelationId string               `json:"correlation_id,omitempty"`
	TraceId       string               `json:"trace_id,omitempty"`
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	var conflict *utils.ConflictError
	switch {
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.As(err, &conflict):
		return http.StatusConflict
	case utils.IsValidation(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, funcName string, err error) {
	ctx := c.Request.Context()
	status := statusForError(err)
	resp := errorResponse{Error: err.Error()}

	switch status {
	case http.StatusUnprocessableEntity:
		if verr, ok := utils.AsValidation(err); ok {
			resp.Error = verr.Reason
			resp.Shortages = verr.Shortages
		}
	case http.StatusConflict:
		var conflict *utils.ConflictError
		if errors.As(err, &conflict) {
			resp.Conflict = conflict
		}
	case http.StatusInternalServerError:
		config.LogError(config.GetLogger(), "server.go", funcName, c.Request.Method+" "+c.FullPath(), nil, err)
		resp.Error = "internal error"
	}

	span := trace.SpanFromContext(ctx)
	if status == http.StatusInternalServerError {
		span.SetStatus(codes.Error, err.Error())
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		resp.TraceId = sc.TraceID().String()
	}
	resp.CorrelationId, _ = utils.GetCorrelationIdFromContext(ctx)
	c.AbortWithStatusJSON(status, resp)
}

// respondBindError reports a malformed or invalid request body.
func respondBindError(c *gin.Context, err error) {
	resp := errorResponse{Error: "invalid request", Fields: utils.ProcessValidationErrors(err)}
	resp.CorrelationId, _ = utils.GetCorrelationIdFromContext(c.Request.Context())
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}

func paramId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (*int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return nil, false
	}
	return &v, true
}
