package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/retail_backend/middlewares"
	"github.com/mmdatafocus/retail_backend/models"
)

func preValidateOnlineOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "PreValidateOnlineOrder")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		var input models.NewOrder
		input.Channel = models.OrderChannelOnline
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		result, err := models.PreValidateOnlineOrder(ctx, &input)
		if err != nil {
			respondError(c, "preValidateOnlineOrderHandler", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type attentionResponse struct {
	*models.OrderAttention
	LocationName string `json:"location_name,omitempty"`
}

func ordersNeedingAttentionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "GetOrdersNeedingAttention")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		list, err := models.GetOrdersNeedingAttention(ctx, time.Now())
		if err != nil {
			respondError(c, "ordersNeedingAttentionHandler", err)
			return
		}
		resp := make([]attentionResponse, 0, len(list))
		for _, a := range list {
			r := attentionResponse{OrderAttention: a}
			if loc, err := middlewares.GetLocation(ctx, a.Order.LocationId); err == nil && loc != nil {
				r.LocationName = loc.Name
			}
			resp = append(resp, r)
		}
		c.JSON(http.StatusOK, resp)
	}
}

func onlineOrderAnalyticsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "GetOnlineOrderAnalytics")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		to := time.Now()
		from := to.AddDate(0, 0, -30)
		if v := c.Query("from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
				return
			}
			from = t
		}
		if v := c.Query("to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
				return
			}
			to = t
		}
		result, err := models.GetOnlineOrderAnalytics(ctx, from, to)
		if err != nil {
			respondError(c, "onlineOrderAnalyticsHandler", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
