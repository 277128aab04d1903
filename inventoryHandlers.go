package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/retail_backend/middlewares"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/shopspring/decimal"
)

type inventoryResponse struct {
	*models.InventoryRecord
	Available decimal.Decimal `json:"available"`
	LowStock  bool            `json:"low_stock"`
	ItemName  string          `json:"item_name,omitempty"`
}

func newInventoryResponse(c *gin.Context, r *models.InventoryRecord) inventoryResponse {
	resp := inventoryResponse{
		InventoryRecord: r,
		Available:       r.Available(),
		LowStock:        r.IsLowStock(),
	}
	if item, err := middlewares.GetItem(c.Request.Context(), r.ItemId); err == nil && item != nil {
		resp.ItemName = item.Name
	}
	return resp
}

func getInventoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "GetInventory")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		itemId, ok := paramId(c, "itemId")
		if !ok {
			return
		}
		locationId, ok := paramId(c, "locationId")
		if !ok {
			return
		}
		record, err := models.GetInventory(ctx, itemId, locationId)
		if err != nil {
			respondError(c, "getInventoryHandler", err)
			return
		}
		c.JSON(http.StatusOK, newInventoryResponse(c, record))
	}
}

func adjustInventoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "AdjustInventory")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		var input models.NewInventoryAdjustment
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		record, err := models.AdjustInventory(ctx, &input)
		if err != nil {
			respondError(c, "adjustInventoryHandler", err)
			return
		}
		c.JSON(http.StatusOK, newInventoryResponse(c, record))
	}
}

func checkInventorySufficiencyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "CheckInventorySufficiency")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		var input struct {
			Requirements []models.InventoryRequirement `json:"requirements" binding:"required,min=1,dive"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		result, err := models.CheckInventorySufficiency(ctx, input.Requirements)
		if err != nil {
			respondError(c, "checkInventorySufficiencyHandler", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func setStockLevelsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "SetStockLevels")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		var input models.NewStockLevels
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		record, err := models.SetStockLevels(ctx, &input)
		if err != nil {
			respondError(c, "setStockLevelsHandler", err)
			return
		}
		c.JSON(http.StatusOK, newInventoryResponse(c, record))
	}
}

func listLowStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ListLowStock")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		locationId, ok := queryInt(c, "location_id")
		if !ok {
			return
		}
		records, err := models.ListLowStock(ctx, locationId)
		if err != nil {
			respondError(c, "listLowStockHandler", err)
			return
		}
		resp := make([]inventoryResponse, 0, len(records))
		for _, r := range records {
			resp = append(resp, newInventoryResponse(c, r))
		}
		c.JSON(http.StatusOK, resp)
	}
}

func listInventoryMovementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "GetInventoryMovements")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		itemId, ok := paramId(c, "itemId")
		if !ok {
			return
		}
		locationId, ok := paramId(c, "locationId")
		if !ok {
			return
		}
		movements, err := models.GetInventoryMovements(ctx, itemId, locationId)
		if err != nil {
			respondError(c, "listInventoryMovementsHandler", err)
			return
		}
		c.JSON(http.StatusOK, movements)
	}
}
