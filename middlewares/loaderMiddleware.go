package middlewares

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"gorm.io/gorm"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders batch the catalog lookups a response needs (line items, attention lists).
type Loaders struct {
	itemLoader     *dataloader.Loader[int, *models.Item]
	locationLoader *dataloader.Loader[int, *models.Location]
}

// NewLoaders instantiates data loaders for the middleware
func NewLoaders(conn *gorm.DB) *Loaders {
	itemReader := &itemReader{db: conn}
	locationReader := &locationReader{db: conn}

	return &Loaders{
		itemLoader:     dataloader.NewBatchedLoader(itemReader.getItems, dataloader.WithWait[int, *models.Item](time.Millisecond)),
		locationLoader: dataloader.NewBatchedLoader(locationReader.getLocations, dataloader.WithWait[int, *models.Location](time.Millisecond)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(config.GetDB())
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// For returns the loaders for the request; callers outside a request get fresh ones.
func For(ctx context.Context) *Loaders {
	if l, ok := ctx.Value(loadersKey).(*Loaders); ok && l != nil {
		return l
	}
	return NewLoaders(config.GetDB())
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

type identifiable interface {
	GetId() int
}

// generateLoaderResults orders results by ids; a missing id yields a nil result.
func generateLoaderResults[Model identifiable](results []Model, ids []int) []*dataloader.Result[*Model] {
	resultMap := make(map[int]*Model, len(results))
	for i := range results {
		resultMap[results[i].GetId()] = &results[i]
	}
	loaderResults := make([]*dataloader.Result[*Model], 0, len(ids))
	for _, id := range ids {
		loaderResults = append(loaderResults, &dataloader.Result[*Model]{Data: resultMap[id]})
	}
	return loaderResults
}
