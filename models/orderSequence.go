package models

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/retail_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Order number prefixes, one sequence each.
const (
	OrderPrefixSales    = "SO"
	OrderPrefixPurchase = "PO"
	OrderPrefixOnline   = "OO"
	OrderPrefixGuest    = "GO"
)

// OrderNumberSequence is a per-prefix counter, incremented under its row lock inside the transaction
// that creates the order.
type OrderNumberSequence struct {
	Prefix    string    `gorm:"size:10;primary_key" json:"prefix"`
	LastValue int64     `gorm:"not null;default:0" json:"last_value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func orderPrefix(channel OrderChannel, guest bool) string {
	switch channel {
	case OrderChannelPurchase:
		return OrderPrefixPurchase
	case OrderChannelOnline:
		if guest {
			return OrderPrefixGuest
		}
		return OrderPrefixOnline
	default:
		return OrderPrefixSales
	}
}

func formatOrderNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%06d", prefix, seq)
}

// nextOrderNumber increments the prefix's counter and returns the formatted number and raw value.
func nextOrderNumber(tx *gorm.DB, prefix string) (string, int64, error) {
	var seq OrderNumberSequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("prefix = ?", prefix).
		Attrs(OrderNumberSequence{Prefix: prefix, LastValue: 0}).
		FirstOrCreate(&seq).Error
	if err != nil && utils.IsDuplicateKeyErr(err) {
		seq = OrderNumberSequence{}
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("prefix = ?", prefix).First(&seq).Error
	}
	if err != nil {
		return "", 0, err
	}
	next := seq.LastValue + 1
	if err := tx.Model(&OrderNumberSequence{}).Where("prefix = ?", prefix).
		UpdateColumn("last_value", gorm.Expr("last_value + 1")).Error; err != nil {
		return "", 0, err
	}
	return formatOrderNumber(prefix, next), next, nil
}
