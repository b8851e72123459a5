package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stockcore-system/config"
	"stockcore-system/internal/auth"
	"stockcore-system/internal/cache"
	"stockcore-system/internal/database"
	"stockcore-system/internal/gateway/handlers"
	"stockcore-system/internal/gateway/middleware"
	"stockcore-system/internal/inventory"
	"stockcore-system/internal/inventory/gormstore"
	"stockcore-system/internal/scheduler"
	"stockcore-system/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	zlog := logger.Must(logger.New())
	defer zlog.Sync()

	db, err := database.NewConnection(cfg.DB.DSN)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	rdb := config.NewRedisClient(cfg.Redis)

	store := gormstore.New(db)
	redisCache := cache.NewRedis(rdb, logger.Named(zlog, "cache"))
	events := inventory.NewRedisNotifier(rdb, "inventory", logger.Named(zlog, "events"))

	coordinator := inventory.NewCoordinator(store, events, redisCache, logger.Named(zlog, "coordinator"))
	levels := inventory.NewLevels(store, redisCache, logger.Named(zlog, "levels"))
	ledger := inventory.NewLedger(store, logger.Named(zlog, "ledger"))
	batches := inventory.NewBatches(store, events, redisCache, logger.Named(zlog, "batches"))
	reservations := inventory.NewReservations(store, events, redisCache, logger.Named(zlog, "reservations"))
	valuation := inventory.NewValuation(store, redisCache, logger.Named(zlog, "valuation"))

	sched := scheduler.NewScheduler(cfg.Scheduler, batches, levels, events, logger.Named(zlog, "scheduler"))
	sched.Start()
	defer sched.Stop()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret)
	inventoryHandler := handlers.NewInventoryHTTPHandler(coordinator, levels, ledger, batches, reservations, valuation)

	r := gin.New()
	r.Use(middleware.CORS())
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit())

	registerRoutes(r, tokens, inventoryHandler)

	zlog.Info("starting server", zap.String("port", cfg.Server.Port))
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func registerRoutes(r *gin.Engine, tokens *auth.TokenManager, h *handlers.InventoryHTTPHandler) {
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth(tokens))
	{
		levels := protected.Group("/inventory/levels")
		{
			levels.POST("", h.RegisterLevel)
			levels.GET("", h.GetLevel)
			levels.GET("/location/:location_id", h.ListLevelsByLocation)
			levels.GET("/reorder", h.ListBelowReorderPoint)
		}

		movements := protected.Group("/inventory/movements")
		{
			movements.POST("", h.RecordMovement)
			movements.GET("", h.QueryMovements)
			movements.GET("/pending", h.ListPendingApproval)
			movements.GET("/:id", h.GetMovement)
			movements.POST("/:id/approve", h.ApproveMovement)
			movements.POST("/:id/reject", h.RejectMovement)
		}

		protected.POST("/inventory/transfers", h.Transfer)
		protected.POST("/inventory/reconciliations", h.Reconcile)

		reservations := protected.Group("/inventory/reservations")
		{
			reservations.POST("", h.Reserve)
			reservations.POST("/:id/release", h.ReleaseReservation)
			reservations.POST("/:id/consume", h.ConsumeReservation)
		}

		batches := protected.Group("/inventory/batches")
		{
			batches.GET("", h.ListBatches)
			batches.POST("/:id/consume", h.ConsumeBatch)
			batches.POST("/recall/:number", h.RecallBatch)
			batches.POST("/expire", h.ExpireBatches)
		}

		valuation := protected.Group("/inventory/valuation")
		{
			valuation.GET("", h.Valuate)
			valuation.GET("/location/:location_id", h.ValuationSummary)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"message":   "Server is running",
			"timestamp": time.Now(),
		})
	})
}
