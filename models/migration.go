package models

import (
	"log"

	"github.com/mmdatafocus/retail_backend/config"
	"gorm.io/gorm"
)

// AutoMigrateModels creates or alters every table this service owns.
func AutoMigrateModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Item{}, &Location{},
		&InventoryRecord{}, &InventoryMovement{}, &InventoryReservation{},
		&Order{}, &OrderLine{}, &OrderStatusHistory{}, &OrderNumberSequence{},
		&PromoCode{}, &PromoCodeUsage{}, &PromoCodeRecipient{}, &PromoCodeItem{},
		&Assembly{}, &BillOfMaterial{},
		&AuditOutboxRecord{},
		&IdempotencyKey{},
	)
}

func MigrateTable() {
	if err := AutoMigrateModels(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}
