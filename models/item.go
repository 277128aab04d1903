package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Item is a catalog entry. Catalog maintenance happens elsewhere; this core only reads it.
type Item struct {
	ID                int             `gorm:"primary_key" json:"id"`
	Name              string          `gorm:"size:255;not null;index" json:"name" binding:"required"`
	Sku               string          `gorm:"size:100;index" json:"sku"`
	Unit              string          `gorm:"size:50" json:"unit"`
	UnitPrice         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	IsAlwaysAvailable bool            `gorm:"not null;default:false" json:"is_always_available"`
	IsActive          *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i Item) Active() bool {
	return i.IsActive == nil || *i.IsActive
}

func (i Item) GetId() int {
	return i.ID
}

// GetItem reads through the redis cache.
func GetItem(ctx context.Context, id int) (*Item, error) {
	item, err := utils.RetrieveRedis[Item](id)
	if err != nil {
		config.LogError(config.GetLogger(), "models/item.go", "GetItem", "redis read", id, err)
	}
	if item != nil {
		return item, nil
	}
	item, err = utils.FetchModel[Item](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis[Item](item, id); err != nil {
		config.LogError(config.GetLogger(), "models/item.go", "GetItem", "redis write", id, err)
	}
	return item, nil
}

// GetItemsByIds returns the items keyed by id; missing ids are simply absent.
func GetItemsByIds(ctx context.Context, ids []int) (map[int]*Item, error) {
	items, err := utils.FetchModelsByIds[Item](ctx, ids)
	if err != nil {
		return nil, err
	}
	result := make(map[int]*Item, len(items))
	for _, it := range items {
		result[it.ID] = it
	}
	return result, nil
}

// findItemByName returns the catalog item an assembly produces, or nil when the catalog has none.
func findItemByName(tx *gorm.DB, name string) (*Item, error) {
	var item Item
	err := tx.Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).
		Order("id").First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func InvalidateItemCache(id int) {
	if err := utils.RemoveRedisItem[Item](id); err != nil {
		config.LogError(config.GetLogger(), "models/item.go", "InvalidateItemCache", "redis delete", id, err)
	}
}
