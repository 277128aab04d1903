package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryMovement is the append-only trail of ledger deltas. QuantityAfter is the record's on-hand
// quantity right after the delta, so the trail can be replayed and compared with the record.
type InventoryMovement struct {
	ID            int                   `gorm:"primary_key" json:"id"`
	ItemId        int                   `gorm:"not null;index:idx_movement_item_location" json:"item_id"`
	LocationId    int                   `gorm:"not null;index:idx_movement_item_location" json:"location_id"`
	Delta         decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"delta"`
	QuantityAfter decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"quantity_after"`
	ReferenceType MovementReferenceType `gorm:"size:10;not null;index:idx_movement_reference" json:"reference_type"`
	ReferenceId   int                   `gorm:"index:idx_movement_reference" json:"reference_id"`
	Description   string                `gorm:"size:255" json:"description"`
	ActorUserId   int                   `gorm:"index" json:"actor_user_id"`
	CreatedAt     time.Time             `gorm:"autoCreateTime;index" json:"created_at"`
}

func (InventoryMovement) LocationScopeColumn() string { return "location_id" }
func (InventoryMovement) CustomerScopeColumn() string { return "" }

func (m *InventoryMovement) BeforeSave(tx *gorm.DB) error {
	if m.ReferenceType == "" {
		return errors.New("movement reference type is required")
	}
	if m.Delta.IsZero() {
		return errors.New("movement delta must not be zero")
	}
	return nil
}

func (m *InventoryMovement) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("inventory movements are append-only")
}

// GetInventoryMovements lists the trail of one (item, location), oldest first.
func GetInventoryMovements(ctx context.Context, itemId int, locationId int) ([]*InventoryMovement, error) {
	if err := requireLocation(ctx, locationId); err != nil {
		return nil, err
	}
	db := config.GetDB()
	var movements []*InventoryMovement
	if err := db.WithContext(ctx).
		Where("item_id = ? AND location_id = ?", itemId, locationId).
		Order("id").Find(&movements).Error; err != nil {
		return nil, utils.Internal("get inventory movements", err)
	}
	return movements, nil
}
