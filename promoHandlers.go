package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/retail_backend/models"
)

func createPromoCodeHandler(notifier models.PromoNotifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "CreatePromoCode")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		var input models.NewPromoCode
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		promo, err := models.CreatePromoCode(ctx, &input, notifier)
		if err != nil {
			respondError(c, "createPromoCodeHandler", err)
			return
		}
		c.JSON(http.StatusCreated, promo)
	}
}

func getPromoCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "GetPromoCode")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		promo, err := models.GetPromoCode(ctx, id)
		if err != nil {
			respondError(c, "getPromoCodeHandler", err)
			return
		}
		c.JSON(http.StatusOK, promo)
	}
}

func deactivatePromoCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "DeactivatePromoCode")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		promo, err := models.DeactivatePromoCode(ctx, id)
		if err != nil {
			respondError(c, "deactivatePromoCodeHandler", err)
			return
		}
		c.JSON(http.StatusOK, promo)
	}
}

func assignPromoCodeHandler(notifier models.PromoNotifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "AssignPromoCode")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var input struct {
			Recipients []models.NewPromoRecipient `json:"recipients" binding:"required,min=1,dive"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		recipients, err := models.AssignPromoCode(ctx, id, input.Recipients, notifier)
		if err != nil {
			respondError(c, "assignPromoCodeHandler", err)
			return
		}
		c.JSON(http.StatusOK, recipients)
	}
}

// evaluatePromoHandler never records usage; an ineligible code is a 200 with valid=false.
func evaluatePromoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "EvaluatePromo")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		var input models.PromoEvaluationInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		scope := models.ScopeFromContext(ctx)
		if scope.CustomerOnly {
			uid := scope.UserId
			input.UserId = &uid
		}
		result, err := models.EvaluatePromo(ctx, &input)
		if err != nil {
			respondError(c, "evaluatePromoHandler", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
