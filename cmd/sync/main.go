package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vivanti/ordersync/internal/client"
	"github.com/vivanti/ordersync/internal/config"
	"github.com/vivanti/ordersync/internal/domain"
	"github.com/vivanti/ordersync/internal/logger"
	"github.com/vivanti/ordersync/internal/repository"
	"github.com/vivanti/ordersync/internal/service"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "ordersync-cli",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	retryFailed := flag.Bool("retry", false, "Retry eligible failed jobs instead of running a new cycle")
	timeout := flag.Duration("timeout", 30*time.Minute, "Overall cycle timeout")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	orderRepo := repository.NewOrderRepository(db, appLogger)
	jobRepo := repository.NewSyncJobRepository(db)

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

	// Cancel the cycle on SIGINT/SIGTERM
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		appLogger.Warn("Interrupt received, cancelling sync")
		cancel()
	}()

	if *retryFailed {
		runRetries(ctx, syncService, jobRepo, appLogger)
		return
	}

	result, err := syncService.RunFullSync(ctx, domain.TriggerManual, domain.JSONMap{"source": "cli"})
	if err != nil {
		appLogger.WithError(err).Fatal("Sync failed to run")
	}
	if !result.Success {
		appLogger.WithFields(logger.Fields{
			logger.FieldJobID: result.JobID,
			"message":         result.Message,
		}).Error("Sync completed with failure")
		os.Exit(1)
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldJobID: result.JobID,
	}).Info("Sync completed successfully")
}

// runRetries re-runs each eligible failed job sequentially, continuing past
// individual failures.
func runRetries(ctx context.Context, syncService *service.SyncService, jobRepo *repository.SyncJobRepository, appLogger *logger.Logger) {
	jobs, err := jobRepo.Retryable(ctx)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to list retryable jobs")
	}
	if len(jobs) == 0 {
		appLogger.Info("No retryable jobs")
		return
	}

	failures := 0
	for _, job := range jobs {
		result, err := syncService.RetryJob(ctx, job.ID)
		if err != nil {
			appLogger.WithField(logger.FieldJobID, job.ID).WithError(err).Error("Retry failed to run")
			failures++
			continue
		}
		if !result.Success {
			appLogger.WithField(logger.FieldJobID, job.ID).Warn("Retry completed with failure")
			failures++
		}
	}

	appLogger.WithFields(logger.Fields{
		"retried":  len(jobs),
		"failures": failures,
	}).Info("Retry sweep finished")
	if failures > 0 {
		os.Exit(1)
	}
}
