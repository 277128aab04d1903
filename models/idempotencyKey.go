package models

import (
	"time"

	"github.com/mmdatafocus/retail_backend/utils"
	"gorm.io/gorm"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
)

// IdempotencyKey makes a client-keyed create replayable.
// Unique constraint: (scope, idem_key).
type IdempotencyKey struct {
	ID        int               `gorm:"primary_key" json:"id"`
	Scope     string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"scope"`
	IdemKey   string            `gorm:"size:255;not null;index:uniq_idem,unique" json:"idem_key"`
	Status    IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	ResultId  int               `json:"result_id"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// beginIdempotency inserts STARTED inside tx. The row commits or rolls back with the work it guards,
// so a committed row is always SUCCEEDED. When the key was already used it returns that result's id.
// A concurrent first use blocks on the unique index until it finishes.
func beginIdempotency(tx *gorm.DB, scope string, key string) (existingId int, err error) {
	row := IdempotencyKey{Scope: scope, IdemKey: key, Status: IdempotencyStatusStarted}
	if err := tx.Create(&row).Error; err == nil {
		return 0, nil
	} else if !utils.IsDuplicateKeyErr(err) {
		return 0, err
	}

	var existing IdempotencyKey
	if err := tx.Where("scope = ? AND idem_key = ?", scope, key).First(&existing).Error; err != nil {
		return 0, err
	}
	if existing.Status != IdempotencyStatusSucceeded || existing.ResultId == 0 {
		return 0, utils.NewConflictError("idempotency key", existing.ID, string(IdempotencyStatusSucceeded), string(existing.Status))
	}
	return existing.ResultId, nil
}

func markIdempotencySucceeded(tx *gorm.DB, scope string, key string, resultId int) error {
	return tx.Model(&IdempotencyKey{}).
		Where("scope = ? AND idem_key = ?", scope, key).
		Updates(map[string]interface{}{"status": IdempotencyStatusSucceeded, "result_id": resultId}).Error
}
