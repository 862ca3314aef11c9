package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vivanti/ordersync/internal/api/handler"
	"github.com/vivanti/ordersync/internal/api/middleware"
	"github.com/vivanti/ordersync/internal/client"
	"github.com/vivanti/ordersync/internal/logger"
	"github.com/vivanti/ordersync/internal/repository"
	"github.com/vivanti/ordersync/internal/scheduler"
	"github.com/vivanti/ordersync/internal/service"
)

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	DB          *gorm.DB
	Orders      *repository.OrderRepository
	Jobs        *repository.SyncJobRepository
	SyncService *service.SyncService
	Scheduler   *scheduler.Scheduler
	Shopify     *client.ShopifyClient
	Airtable    *client.AirtableClient
	TableName   string
	Logger      *logger.Logger
	CORS        middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Dependencies, mode string) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps.DB)
	syncHandler := handler.NewSyncHandler(deps.Scheduler, deps.Logger)
	jobHandler := handler.NewJobHandler(deps.Jobs, deps.SyncService, deps.Logger)
	orderHandler := handler.NewOrderHandler(deps.Orders, deps.Shopify, deps.Airtable, deps.TableName, deps.Logger)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Sync trigger and scheduler control
		v1.POST("/sync", syncHandler.TriggerSync)
		v1.GET("/scheduler/status", syncHandler.SchedulerStatus)
		v1.POST("/scheduler/start", syncHandler.StartScheduler)
		v1.POST("/scheduler/stop", syncHandler.StopScheduler)

		// Job history
		v1.GET("/jobs", jobHandler.ListRecent)
		v1.GET("/jobs/stats", jobHandler.GetStats)
		v1.GET("/jobs/failed", jobHandler.ListFailed)
		v1.GET("/jobs/running", jobHandler.ListRunning)
		v1.GET("/jobs/:id", jobHandler.GetJob)
		v1.POST("/jobs/:id/retry", jobHandler.RetryJob)
		v1.POST("/jobs/:id/cancel", jobHandler.CancelJob)

		// Stored orders and direct upstream/downstream lookups
		v1.GET("/orders", orderHandler.ListOrders)
		v1.GET("/orders/:id", orderHandler.GetOrder)
		v1.GET("/shopify/orders/:id", orderHandler.GetShopifyOrder)
		v1.POST("/shopify/webhooks", orderHandler.SubscribeWebhook)
		v1.GET("/airtable/records", orderHandler.ListAirtableRecords)
	}

	return r
}
