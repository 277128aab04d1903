package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/retail_backend/utils"
)

type Location struct {
	ID        int          `gorm:"primary_key" json:"id"`
	Name      string       `gorm:"size:100;not null" json:"name" binding:"required"`
	Type      LocationType `gorm:"not null" json:"type"`
	IsActive  *bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l Location) Active() bool {
	return l.IsActive == nil || *l.IsActive
}

func (l Location) GetId() int {
	return l.ID
}

func GetLocation(ctx context.Context, id int) (*Location, error) {
	return utils.FetchModel[Location](ctx, id)
}

func validateLocations(ctx context.Context, ids []int) error {
	if err := utils.ValidateResourcesId[Location](ctx, ids); err != nil {
		return utils.NewValidationError("location not found")
	}
	return nil
}
