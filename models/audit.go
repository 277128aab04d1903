package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
)

// Outbox publish statuses for AuditOutboxRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// AuditOutboxRecord holds one audit entry until the dispatcher has delivered it to the audit sink.
type AuditOutboxRecord struct {
	ID               int         `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	Entity           string      `gorm:"size:64;not null;index:idx_audit_entity" json:"entity"`
	EntityId         int         `gorm:"not null;index:idx_audit_entity" json:"entity_id"`
	Action           AuditAction `gorm:"not null" json:"action"`
	Before           []byte      `gorm:"type:blob" json:"before"`
	After            []byte      `gorm:"type:blob" json:"after"`
	ActorUserId      int         `gorm:"index" json:"actor_user_id"`
	PublishStatus    string      `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time  `gorm:"index" json:"published_at"`
	SinkMessageId    *string     `gorm:"size:255" json:"sink_message_id"`
	PublishAttempts  int         `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time  `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time  `gorm:"index" json:"locked_at"`
	LockedBy         *string     `gorm:"size:100" json:"locked_by"`
	LastPublishError *string     `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string      `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r AuditOutboxRecord) ToMessage() config.AuditMessage {
	return config.AuditMessage{
		ID:            r.ID,
		Entity:        r.Entity,
		EntityId:      r.EntityId,
		Action:        string(r.Action),
		Before:        r.Before,
		After:         r.After,
		ActorUserId:   r.ActorUserId,
		OccurredAt:    r.CreatedAt,
		CorrelationId: r.CorrelationId,
	}
}

// RecordAudit queues an audit entry for delivery. It is called after the business transaction has
// committed; failures are logged and never reach the caller.
func RecordAudit(ctx context.Context, entity string, entityId int, action AuditAction, before interface{}, after interface{}) {
	logger := config.GetLogger()

	record := AuditOutboxRecord{
		Entity:        entity,
		EntityId:      entityId,
		Action:        action,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	record.ActorUserId, _ = utils.GetUserIdFromContext(ctx)
	if before != nil {
		b, err := json.Marshal(before)
		if err != nil {
			config.LogError(logger, "models/audit.go", "RecordAudit", "marshal before", entity, err)
			return
		}
		record.Before = b
	}
	if after != nil {
		a, err := json.Marshal(after)
		if err != nil {
			config.LogError(logger, "models/audit.go", "RecordAudit", "marshal after", entity, err)
			return
		}
		record.After = a
	}

	db := config.GetDB()
	if db == nil {
		return
	}
	// detached from request cancellation; the request may already be finishing
	if err := db.WithContext(context.WithoutCancel(ctx)).Create(&record).Error; err != nil {
		config.LogError(logger, "models/audit.go", "RecordAudit", "insert outbox record", map[string]interface{}{
			"entity":    entity,
			"entity_id": entityId,
			"action":    action,
		}, err)
	}
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
