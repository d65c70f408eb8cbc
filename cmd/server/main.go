package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ikkim/marketplace-ingest/config"
	"github.com/ikkim/marketplace-ingest/internal/app"
	"github.com/ikkim/marketplace-ingest/internal/app/service"
	"github.com/ikkim/marketplace-ingest/internal/db"
	"github.com/ikkim/marketplace-ingest/internal/scheduler"
	"github.com/ikkim/marketplace-ingest/internal/scraper"
	"github.com/ikkim/marketplace-ingest/internal/storage"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"github.com/ikkim/marketplace-ingest/pkg/redis"
	"github.com/ikkim/marketplace-ingest/pkg/util"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := cfg.Server.LogLevel
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
	}
	format := "json"
	if cfg.Server.Environment == "development" {
		format = "console"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      format,
		EnableColor: true,
	})

	logger.Info("Starting marketplace ingest server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Load selector profiles
	profiles, err := scraper.LoadProfiles(cfg.Scraper.ProfilesPath)
	if err != nil {
		logger.Fatal("Failed to load scrape profiles", err, map[string]interface{}{
			"path": cfg.Scraper.ProfilesPath,
		})
	}
	logger.Info("Scrape profiles loaded", map[string]interface{}{
		"sites": profiles.Sites(),
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := app.Options{
		DB:       db.GetDB(),
		Profiles: profiles,
	}

	// Redis (optional): API key cache + run lock
	if cfg.Redis.Enabled {
		if err := redis.Init(&cfg.Redis); err != nil {
			logger.Warn("Redis unavailable, continuing without cache and run lock", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			opts.Redis = redis.GetClient()
			defer redis.Close()
		}
	}

	if cfg.Geocode.KakaoAPIKey != "" {
		opts.Geocoder = util.NewKakaoGeocoder(cfg.Geocode.KakaoAPIKey)
	}

	if cfg.S3.Enabled {
		opts.Mirror = storage.NewS3Storage(
			cfg.S3.Region,
			cfg.S3.Bucket,
			cfg.S3.AccessKeyID,
			cfg.S3.SecretAccessKey,
			cfg.S3.BaseURL,
			cfg.S3.Folder,
		)
		logger.Info("Image mirror enabled", map[string]interface{}{
			"bucket": cfg.S3.Bucket,
			"region": cfg.S3.Region,
		})
	}

	if cfg.Browser.Enabled {
		browser, err := scraper.NewBrowserFetcher(scraper.BrowserOptions{
			BinPath:     cfg.Browser.BinPath,
			Headless:    cfg.Browser.Headless,
			UserAgent:   cfg.Scraper.UserAgent,
			PageTimeout: cfg.Browser.PageTimeout,
			IdleTimeout: cfg.Browser.IdleTimeout,
		})
		if err != nil {
			// render_js 프로필만 실패하고 나머지는 계속 수집
			logger.Error("Failed to start headless browser", err)
		} else {
			opts.Browser = browser
			defer browser.Close()
		}
	}

	application := app.New(ctx, cfg, opts)
	engine := application.Handler(ctx)

	// Start scrape scheduler
	var scrapeScheduler *scheduler.ScrapeScheduler
	if cfg.Schedule.Enabled {
		scrapeScheduler = scheduler.NewScrapeScheduler(application.Scrape, cfg.Schedule.Cron, cfg.Schedule.Sites, cfg.Scraper.Actor)
		if err := scrapeScheduler.Start(); err != nil {
			logger.Fatal("Failed to start scrape scheduler", err)
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: engine,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")

	if scrapeScheduler != nil {
		scrapeScheduler.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}

	// 진행 중인 비동기 수집 취소
	cancel()
	logLastRuns(application.Scrape)

	logger.Info("Server stopped successfully")
}

func logLastRuns(scrape service.ScrapeService) {
	for _, site := range scrape.Sites() {
		if summary := scrape.LastRun(site); summary != nil {
			logger.Info("Last scrape run", map[string]interface{}{
				"site":     site,
				"run_id":   summary.RunID,
				"inserted": summary.Inserted,
				"updated":  summary.Updated,
				"failed":   summary.Failed,
			})
		}
	}
}
