package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/retail_backend/models"
)

const idempotencyKeyHeader = "Idempotency-Key"

func createOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "CreateOrder")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		var input models.NewOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		key := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
		if len(key) > 100 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "idempotency key too long"})
			return
		}
		order, err := models.CreateOrder(ctx, &input, key)
		if err != nil {
			respondError(c, "createOrderHandler", err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

func getOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "GetOrder")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		order, err := models.GetOrder(ctx, id)
		if err != nil {
			respondError(c, "getOrderHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"order":           order,
			"allowed_actions": models.AllowedOrderActions(order.Channel, order.Status),
		})
	}
}

func listOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "GetOrders")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		var filter models.OrderFilter
		if v := c.Query("channel"); v != "" {
			ch := models.OrderChannel(v)
			filter.Channel = &ch
		}
		if v := c.Query("status"); v != "" {
			st := models.OrderStatus(v)
			filter.Status = &st
		}
		locationId, ok := queryInt(c, "location_id")
		if !ok {
			return
		}
		filter.LocationId = locationId
		limit, ok := queryInt(c, "limit")
		if !ok {
			return
		}
		if limit != nil {
			filter.Limit = *limit
		}

		orders, err := models.GetOrders(ctx, filter)
		if err != nil {
			respondError(c, "listOrdersHandler", err)
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

func orderHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "GetOrderStatusHistory")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		history, err := models.GetOrderStatusHistory(ctx, id)
		if err != nil {
			respondError(c, "orderHistoryHandler", err)
			return
		}
		c.JSON(http.StatusOK, history)
	}
}

func transitionOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "TransitionOrder")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		action, err := models.ParseOrderAction(c.Param("action"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var opts models.TransitionOptions
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&opts); err != nil {
				respondBindError(c, err)
				return
			}
		}
		order, err := models.TransitionOrder(ctx, id, action, &opts)
		if err != nil {
			respondError(c, "transitionOrderHandler", err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func applyOrderPromoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ApplyPromoToOrder")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var input struct {
			Code   string `json:"code" binding:"required,max=50"`
			UserId *int   `json:"user_id"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		order, err := models.ApplyPromoToOrder(ctx, id, input.Code, input.UserId)
		if err != nil {
			respondError(c, "applyOrderPromoHandler", err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}
