package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryReservation is stock an in-progress assembly holds. The held amount is also counted in
// InventoryRecord.ReservedQuantity; these rows say who holds it.
type InventoryReservation struct {
	ID         int             `gorm:"primary_key" json:"id"`
	AssemblyId int             `gorm:"not null;index" json:"assembly_id"`
	ItemId     int             `gorm:"not null;index:idx_reservation_item_location" json:"item_id"`
	LocationId int             `gorm:"not null;index:idx_reservation_item_location" json:"location_id"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	ReleasedAt *time.Time      `gorm:"index" json:"released_at"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func createReservations(tx *gorm.DB, a *Assembly) error {
	rows := make([]InventoryReservation, 0, len(a.Materials))
	for _, m := range a.Materials {
		rows = append(rows, InventoryReservation{
			AssemblyId: a.ID,
			ItemId:     m.RawItemId,
			LocationId: m.LocationId,
			Quantity:   RequiredQuantity(m.RequiredQuantityPerBuild, a.BuildQuantity),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

// activeReservations sums what assemblyId still holds per (item, location).
func activeReservations(tx *gorm.DB, assemblyId int) (map[ledgerKey]decimal.Decimal, error) {
	var rows []InventoryReservation
	if err := tx.Where("assembly_id = ? AND released_at IS NULL", assemblyId).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make(map[ledgerKey]decimal.Decimal, len(rows))
	for _, r := range rows {
		k := ledgerKey{r.ItemId, r.LocationId}
		result[k] = result[k].Add(r.Quantity)
	}
	return result, nil
}

func releaseReservations(tx *gorm.DB, assemblyId int) error {
	return tx.Model(&InventoryReservation{}).
		Where("assembly_id = ? AND released_at IS NULL", assemblyId).
		UpdateColumn("released_at", time.Now()).Error
}
