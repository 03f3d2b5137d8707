package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/gritasolar/solar-data-aggregation/internal/api/http"
	"github.com/gritasolar/solar-data-aggregation/internal/config"
	"github.com/gritasolar/solar-data-aggregation/internal/scheduler"
	"github.com/gritasolar/solar-data-aggregation/internal/solar"
	"github.com/gritasolar/solar-data-aggregation/internal/solar/sources"
	"github.com/gritasolar/solar-data-aggregation/internal/store"
	"github.com/gritasolar/solar-data-aggregation/pkg/metrics"
)

func main() {
	// Load configuration (reads .env when present).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	collector := metrics.NewCollector("solar")

	// Postgres is authoritative. Without it the process stays up in a
	// degraded in-memory mode so the dashboard keeps working.
	var readingStore solar.Store
	pg, err := store.NewPostgresStore(cfg.DB, collector)
	if err != nil {
		log.Printf("ERROR: postgres unavailable, falling back to in-memory store: %v", err)
		readingStore = store.NewMemoryStore(10000)
	} else {
		defer pg.Close()
		readingStore = pg
	}

	// Shared HTTP client for outbound API calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	gsa := sources.NewGSASource()
	defer gsa.Close()

	probe := solar.NewHTTPProbe(httpClient)
	coordinator := solar.NewCoordinator(probe, cfg.ProbeTimeout,
		gsa,
		sources.NewPVGISSource(httpClient),
		sources.NewBMKGSource(),
	)

	service := solar.NewService(coordinator, readingStore, cfg.CacheFreshness, collector)
	if cfg.FileBackupEnabled {
		service.SetBackup(store.NewFileBackup(cfg.FileBackupPath))
	}

	// Scheduler that periodically acquires the roster.
	sched := scheduler.New(cfg.Locations, cfg.ScrapeCron, cfg.InterLocationDelay, cfg.WarmupDelay, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "solar-data-aggregation",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          120 * time.Second,
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
	app.Use(cors.New())

	// API routes.
	httpapi.RegisterRoutes(app, service, readingStore, cfg.GeocoderAPIKey)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(collector.Registry, promhttp.HandlerOpts{})))

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
