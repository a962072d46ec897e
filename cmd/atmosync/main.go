package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/atmosync/atmosync/internal/api/http"
	"github.com/atmosync/atmosync/internal/auth"
	"github.com/atmosync/atmosync/internal/catalog"
	"github.com/atmosync/atmosync/internal/config"
	"github.com/atmosync/atmosync/internal/measure"
	"github.com/atmosync/atmosync/internal/metrics"
	"github.com/atmosync/atmosync/internal/netatmo/client"
	"github.com/atmosync/atmosync/internal/scheduler"
	"github.com/atmosync/atmosync/internal/store"
	"github.com/atmosync/atmosync/internal/syncer"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// SQLite record store.
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	sqlStore := store.NewSQLStore(db)
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := sqlStore.InitDB(initCtx); err != nil {
		cancelInit()
		log.Fatalf("failed to init database schema: %v", err)
	}
	cancelInit()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Shared HTTP client for outbound cloud API calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	apiClient := client.New(httpClient, cfg.APIBaseURL)

	// Core services.
	authManager := auth.NewManager(sqlStore, apiClient, auth.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, m)
	cat := catalog.New(sqlStore, apiClient, authManager)
	measures := measure.NewService(sqlStore, m, cfg.Lookback)
	sync := syncer.New(authManager, cat, measures, apiClient, m, cfg.Username, cfg.Password)

	// Scheduler that periodically runs an incremental sync pass.
	sched := scheduler.New(sync, cfg.SyncInterval, cfg.SyncTimeout)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "atmosync",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "atmosync",
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, cat, measures)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
