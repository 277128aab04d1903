package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils"
)

type auditReplayRequest struct {
	RecordId int `json:"record_id" binding:"required"`
}

// auditReplayHandler re-queues an audit record that went FAILED or DEAD. Admin only.
func auditReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if !models.ScopeFromContext(ctx).IsAdmin() {
			respondError(c, "auditReplayHandler", models.ErrForbidden)
			return
		}

		var req auditReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}

		now := time.Now().UTC()
		res := config.GetDB().WithContext(ctx).
			Model(&models.AuditOutboxRecord{}).
			Where("id = ? AND publish_status IN ?", req.RecordId, []string{models.OutboxPublishStatusFailed, models.OutboxPublishStatusDead}).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusPending,
				"publish_attempts":   0,
				"next_attempt_at":    &now,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			})
		if res.Error != nil {
			respondError(c, "auditReplayHandler", utils.Internal("replay audit record", res.Error))
			return
		}
		if res.RowsAffected == 0 {
			respondError(c, "auditReplayHandler", utils.NewValidationError("audit record %d is not failed or dead", req.RecordId))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"record_id":       req.RecordId,
			"publish_status":  models.OutboxPublishStatusPending,
			"next_attempt_at": now.Format(time.RFC3339Nano),
		})
	}
}
