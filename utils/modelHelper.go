package utils

import (
	"context"
	"errors"

	"github.com/mmdatafocus/retail_backend/config"
	"gorm.io/gorm"
)

/* DB fetching */

// fetch model from db
// (may return RecordNotFound; scoped models are filtered by the request's access scope)
func FetchModel[T any](ctx context.Context, id int, associations ...string) (*T, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// fetch models whose id is in ids, in no particular order
func FetchModelsByIds[T any](ctx context.Context, ids []int) ([]*T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db := config.GetDB()
	var results []*T
	if err := db.WithContext(ctx).Where("id IN ?", UniqueSlice(ids)).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
