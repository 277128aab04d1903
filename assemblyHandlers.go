package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/retail_backend/models"
)

func createAssemblyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "CreateAssembly")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		var input models.NewAssembly
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		assembly, err := models.CreateAssembly(ctx, &input)
		if err != nil {
			respondError(c, "createAssemblyHandler", err)
			return
		}
		c.JSON(http.StatusCreated, assembly)
	}
}

func getAssemblyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "GetAssembly")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		assembly, err := models.GetAssembly(ctx, id)
		if err != nil {
			respondError(c, "getAssemblyHandler", err)
			return
		}
		c.JSON(http.StatusOK, assembly)
	}
}

func validateAssemblyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "ValidateAssembly")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		shortages, err := models.ValidateAssembly(ctx, id)
		if err != nil {
			respondError(c, "validateAssemblyHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"sufficient": len(shortages) == 0,
			"shortages":  shortages,
		})
	}
}

// assemblyStepHandler serves the start, complete and cancel steps, which share a shape.
func assemblyStepHandler(name string, step func(ctx context.Context, id int) (*models.Assembly, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), name)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		assembly, err := step(ctx, id)
		if err != nil {
			respondError(c, name, err)
			return
		}
		c.JSON(http.StatusOK, assembly)
	}
}

func sellAssemblyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "SellAssembly")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var input models.SellAssemblyInput
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&input); err != nil {
				respondBindError(c, err)
				return
			}
		}
		order, err := models.SellAssembly(ctx, id, &input)
		if err != nil {
			respondError(c, "sellAssemblyHandler", err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}
