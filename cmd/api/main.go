package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vivanti/ordersync/internal/api"
	"github.com/vivanti/ordersync/internal/api/middleware"
	"github.com/vivanti/ordersync/internal/client"
	"github.com/vivanti/ordersync/internal/config"
	"github.com/vivanti/ordersync/internal/logger"
	"github.com/vivanti/ordersync/internal/repository"
	"github.com/vivanti/ordersync/internal/scheduler"
	"github.com/vivanti/ordersync/internal/service"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(db, appLogger)
	jobRepo := repository.NewSyncJobRepository(db)

	// Initialize external clients
	shopifyClient := client.NewShopifyClient(&client.ShopifyConfig{
		ShopName:    cfg.Shopify.ShopName,
		APIVersion:  cfg.Shopify.APIVersion,
		AccessToken: cfg.Shopify.AccessToken,
		PageDelay:   cfg.Shopify.PageDelay,
	}, appLogger)

	airtableClient := client.NewAirtableClient(&client.AirtableConfig{
		APIKey: cfg.Airtable.APIKey,
		BaseID: cfg.Airtable.BaseID,
	}, appLogger)

	// Initialize sync service
	syncService := service.NewSyncService(
		shopifyClient,
		airtableClient,
		orderRepo,
		jobRepo,
		appLogger,
		service.SyncConfig{
			PageSize:   cfg.Sync.PageSize,
			BatchDelay: cfg.Sync.BatchDelay,
			MaxRetries: cfg.Sync.MaxRetries,
			TableName:  cfg.Airtable.TableName,
		},
	)

	// Initialize scheduler
	sched := scheduler.New(syncService, jobRepo, appLogger, scheduler.Config{
		SyncCron:     cfg.Scheduler.SyncCron,
		RetryCron:    cfg.Scheduler.RetryCron,
		CycleTimeout: cfg.Scheduler.CycleTimeout,
	})
	if cfg.Scheduler.Enabled {
		if err := sched.Start(); err != nil {
			appLogger.WithError(err).Fatal("Failed to start scheduler")
		}
	}

	// Setup router
	router := api.SetupRouter(api.Dependencies{
		DB:          db,
		Orders:      orderRepo,
		Jobs:        jobRepo,
		SyncService: syncService,
		Scheduler:   sched,
		Shopify:     shopifyClient,
		Airtable:    airtableClient,
		TableName:   cfg.Airtable.TableName,
		Logger:      appLogger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Stop future scheduler ticks before draining requests
	sched.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
