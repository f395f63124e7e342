package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/hwidgate/internal/gateway/domain"
	httpapi "github.com/aussiebroadwan/hwidgate/internal/gateway/http"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/metrics"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/service"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/store"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/store/drivers/file"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/store/drivers/redis"
	"github.com/aussiebroadwan/hwidgate/internal/gateway/store/drivers/sqlite"
	"github.com/aussiebroadwan/hwidgate/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags "-X ...app.BuildVersion=...".
var BuildVersion = "v0.1.0"

// Application encapsulates the loader gateway with all its dependencies
type Application struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Core dependencies
	registry store.Registry

	// Services
	authorizeService *service.AuthorizeService
	contentService   *service.ContentService
	accessRecorder   *service.AccessRecorder

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "hwidgate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	if err := app.initRegistry(context.Background()); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler exposes the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.accessRecorder.Start()

	app.logger.Info("loader gateway starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"registry_driver", app.cfg.RegistryDriver,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		app.accessRecorder.Stop()
		_ = app.registry.Close()
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down loader gateway...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Flush pending access records once no handler can produce more.
	app.accessRecorder.Stop()

	if err := app.registry.Close(); err != nil {
		app.logger.Error("error closing registry", "error", err)
		return err
	}

	app.logger.Info("loader gateway stopped")
	return nil
}

// initRegistry opens the configured registry driver, applying migrations and
// the optional seed where the driver supports them.
func (app *Application) initRegistry(ctx context.Context) error {
	switch app.cfg.RegistryDriver {
	case DriverFile:
		app.registry = file.NewStore(app.cfg.RegistryPath)
		if err := app.registry.Ping(ctx); err != nil {
			// Not fatal: requests answer 500 until the file appears.
			app.logger.Warn("registry file not readable yet", "path", app.cfg.RegistryPath, "error", err)
		}
		return nil

	case DriverSQLite:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.RegistryPath)
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := db.ApplyMigrations(); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply database migrations: %w", err)
		}
		app.logger.Info("database migrations applied successfully")
		app.registry = db
		return app.seed(ctx, db)

	case DriverRedis:
		rs, err := redis.Open(app.cfg.RedisURL, app.cfg.RedisKey)
		if err != nil {
			return fmt.Errorf("failed to initialize redis registry: %w", err)
		}
		app.registry = rs
		return app.seed(ctx, rs)
	}

	return fmt.Errorf("unknown registry driver %q", app.cfg.RegistryDriver)
}

type importer interface {
	Import(ctx context.Context, reg domain.Registry) (int, error)
}

// seed copies entries from REGISTRY_SEED_PATH that the store does not have
// yet. Existing entries, including expired ones, are left alone.
func (app *Application) seed(ctx context.Context, dst importer) error {
	if app.cfg.RegistrySeedPath == "" {
		return nil
	}

	reg, err := file.NewStore(app.cfg.RegistrySeedPath).Load(ctx)
	if err != nil {
		_ = app.registry.Close()
		return fmt.Errorf("failed to read registry seed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	added, err := dst.Import(ctx, reg)
	if err != nil {
		_ = app.registry.Close()
		return fmt.Errorf("failed to import registry seed: %w", err)
	}

	app.logger.Info("registry seed imported", "path", app.cfg.RegistrySeedPath, "entries", len(reg), "added", added)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.authorizeService = &service.AuthorizeService{
		Store:   app.registry,
		Metrics: app.metrics,
	}

	app.contentService = service.NewContentService(service.Upstream{
		BaseURL:  app.cfg.UpstreamBaseURL,
		Owner:    app.cfg.GitHubOwner,
		Repo:     app.cfg.GitHubRepo,
		Path:     app.cfg.GitHubPath,
		Token:    app.cfg.GitHubToken,
		Timeout:  app.cfg.UpstreamTimeout,
		MaxBytes: app.cfg.UpstreamMaxBytes,
	}, app.cfg.FallbackPath, app.metrics)

	app.accessRecorder = service.NewAccessRecorder(
		app.cfg.AccessLogPath,
		app.cfg.AccessLogBuffer,
		app.logger.With("component", "access_recorder"),
		app.metrics,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.registry, app.metrics, app.logger, app.cfg.ProtectedFiles()...)

	router.AuthorizeService = app.authorizeService
	router.ContentService = app.contentService
	router.AccessRecorder = app.accessRecorder
	router.TrustProxyHeaders = app.cfg.TrustProxyHeaders
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
		// Upstream timeout plus headroom for the fallback read and the write.
		WriteTimeout: app.cfg.UpstreamTimeout + 10*time.Second,
	}
}
