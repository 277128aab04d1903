package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/middlewares"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/mmdatafocus/retail_backend/workflow"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const (
	defaultPort           = "8080"
	correlationIdHeader   = "x-correlation-id"
	shutdownGracePeriod   = 30 * time.Second
	defaultRateLimit      = 600
	defaultRateLimitRange = 60
)

var tracer = otel.Tracer("retail-backend")

func registerRoutes(r *gin.Engine, notifier models.PromoNotifier) {
	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware())

	inventory := api.Group("/inventory")
	inventory.GET("/items/:itemId/locations/:locationId", getInventoryHandler())
	inventory.GET("/items/:itemId/locations/:locationId/movements", listInventoryMovementsHandler())
	inventory.POST("/adjustments", adjustInventoryHandler())
	inventory.POST("/sufficiency", checkInventorySufficiencyHandler())
	inventory.PUT("/stock-levels", setStockLevelsHandler())
	inventory.GET("/low-stock", listLowStockHandler())

	orders := api.Group("/orders")
	orders.POST("", createOrderHandler())
	orders.GET("", listOrdersHandler())
	orders.GET("/:id", getOrderHandler())
	orders.GET("/:id/history", orderHistoryHandler())
	orders.POST("/:id/transitions/:action", transitionOrderHandler())
	orders.POST("/:id/promo", applyOrderPromoHandler())

	online := api.Group("/online-orders")
	online.POST("/pre-validate", preValidateOnlineOrderHandler())
	online.GET("/attention", ordersNeedingAttentionHandler())
	online.GET("/analytics", onlineOrderAnalyticsHandler())

	promos := api.Group("/promo-codes")
	promos.POST("", createPromoCodeHandler(notifier))
	promos.GET("/:id", getPromoCodeHandler())
	promos.POST("/:id/deactivate", deactivatePromoCodeHandler())
	promos.POST("/:id/recipients", assignPromoCodeHandler(notifier))
	api.POST("/promo-evaluations", evaluatePromoHandler())

	assemblies := api.Group("/assemblies")
	assemblies.POST("", createAssemblyHandler())
	assemblies.GET("/:id", getAssemblyHandler())
	assemblies.GET("/:id/validate", validateAssemblyHandler())
	assemblies.POST("/:id/start", assemblyStepHandler("StartAssembly", models.StartAssembly))
	assemblies.POST("/:id/complete", assemblyStepHandler("CompleteAssembly", models.CompleteAssembly))
	assemblies.POST("/:id/cancel", assemblyStepHandler("CancelAssembly", models.CancelAssembly))
	assemblies.POST("/:id/sell", sellAssemblyHandler())

	api.POST("/internal/ops/audit/replay", auditReplayHandler())
}

// correlationId reuses the caller's id or mints one, and echoes it on the response.
func correlationId() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(correlationIdHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header(correlationIdHeader, cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

// readinessGate answers 503 until the database and redis are connected.
func readinessGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	allowed := splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS"))
	switch {
	case !config.IsProduction():
		corsConfig.AllowAllOrigins = true
	case len(allowed) > 0:
		corsConfig.AllowOrigins = allowed
	default:
		corsConfig.AllowOrigins = []string{}
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", idempotencyKeyHeader, correlationIdHeader)
	corsConfig.AddExposeHeaders("Content-Length", correlationIdHeader)
	corsConfig.AllowCredentials = true
	return cors.New(corsConfig)
}

func newRouter(logger *logrus.Logger, notifier models.PromoNotifier) *gin.Engine {
	r := gin.New()
	r.Use(correlationId())
	r.Use(readinessGate())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(corsMiddleware())
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := config.IntFromEnv("RATE_LIMIT_MAX_REQUESTS", defaultRateLimit)
		window := time.Duration(config.IntFromEnv("RATE_LIMIT_WINDOW_SECONDS", defaultRateLimitRange)) * time.Second
		r.Use(middlewares.RateLimitMiddleware(int64(limit), window))
	}
	r.Use(middlewares.LoaderMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	registerRoutes(r, notifier)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	notifier := workflow.NewPromoNotifierFromEnv(logger)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(logger, notifier),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// the readiness gate answers 503 until both connections are up
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	} else {
		models.MigrateTable()
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	sink, err := workflow.NewAuditSinkFromEnv(logger)
	if err != nil {
		config.LogError(logger, "server.go", "main", "audit sink", config.AuditSinkKind(), err)
		sink = &workflow.LogAuditSink{Logger: logger}
	}
	go workflow.NewOutboxDispatcher(db, logger, sink).Run(workerCtx)
	go workflow.NewPromoNotificationRetrier(notifier, logger).Run(workerCtx)

	logger.WithFields(logrus.Fields{"field": "http", "port": port}).Info("retail backend ready")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	cancelWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if err := config.CloseKafkaAuditWriter(); err != nil {
		config.LogError(logger, "server.go", "main", "close kafka writer", nil, err)
	}
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs the errors handlers attached to the gin context.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
