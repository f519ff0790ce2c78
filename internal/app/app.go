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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"macrosynergy/internal/config"
	"macrosynergy/internal/dataquery"
	apierrors "macrosynergy/internal/errors"
	"macrosynergy/internal/exporter"
	"macrosynergy/internal/files"
	"macrosynergy/internal/infrastructure"
	"macrosynergy/internal/jpmaqs"
	customMiddleware "macrosynergy/internal/middleware"
	"macrosynergy/internal/operations"
	"macrosynergy/internal/services"
	"macrosynergy/internal/store"
	handlers "macrosynergy/internal/transport/http"
	ws "macrosynergy/internal/websocket"
)

var (
	// Version is overridden at build time with -ldflags "-X".
	Version = config.AppVersion
	// BuildTime is set at compile time
	BuildTime = ""
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	Runtime       *infrastructure.RuntimeCollector
	Store         store.Store
	DataQuery     *dataquery.Client
	WebSocketHub  *ws.Hub
	JobQueue      *operations.JobQueue
	Services      *ServiceContainer

	stopped chan struct{}
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Analysis *services.AnalysisService
	Series   *services.SeriesService
	Jobs     *services.JobService
	Health   *services.HealthService
}

// NewApplication loads the configuration and builds the application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return New(cfg, logger)
}

// New builds the application for cfg. Nothing is served until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", Version))

	paths, err := cfg.Resolve()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution()

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
		stopped:       make(chan struct{}),
	}

	if err := a.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	a.setupRouter()
	a.createServer()
	return a, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	metrics, err := infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create business metrics: %w", err)
	}
	a.Metrics = metrics

	a.Runtime, err = infrastructure.NewRuntimeCollector(a.OTelProviders.Meter, 15*time.Second)
	if err != nil {
		return err
	}

	a.Store, err = store.New(a.Config.Store, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", a.Config.Store.Driver, err)
	}

	hub := ws.NewHub(a.Logger)
	hub.Start()
	a.WebSocketHub = hub

	a.JobQueue = operations.NewJobQueue(config.DefaultJobWorkers, operations.NewMemoryJobStore(), a.Logger,
		operations.WithHub(hub),
		operations.WithTracer(operations.NewJobTracer(metrics)),
		operations.WithJobTimeout(a.Config.Server.OperationTimeout),
		operations.WithQueueSize(config.DefaultJobQueueSize),
	)

	analysis := services.NewAnalysisService(a.Store, metrics, a.Logger)
	runner := services.NewAnalysisRunner(analysis)
	for _, jobType := range []string{
		services.JobTypeZnScores, services.JobTypeLinearComposite, services.JobTypeHistoricVol,
	} {
		a.JobQueue.Register(jobType, runner)
	}

	if err := a.registerDownloads(); err != nil {
		return err
	}

	deps := services.HealthDeps{
		Store:   a.Store,
		Jobs:    a.JobQueue,
		Hub:     hub,
		Runtime: a.Runtime,
	}
	if a.DataQuery != nil {
		deps.Upstream = a.DataQuery
	}

	a.Services = &ServiceContainer{
		Analysis: analysis,
		Series:   services.NewSeriesService(a.Store, a.Logger),
		Jobs:     services.NewJobService(a.JobQueue, a.Logger),
		Health:   services.NewHealthService(Version, BuildTime, deps, a.Logger),
	}
	return nil
}

// registerDownloads wires the JPMaQS download runner. Without usable
// DataQuery credentials the service still starts and download jobs are
// rejected as an unknown type.
func (a *Application) registerDownloads() error {
	client, err := jpmaqs.NewClient(a.Config.DataQuery, a.Paths, a.Logger)
	if err != nil {
		a.Logger.Warn("DataQuery client unavailable, downloads disabled",
			slog.String("error", err.Error()))
		return nil
	}
	a.DataQuery = client

	var uploader services.Uploader
	if a.Config.Export.S3Bucket != "" {
		s3, err := exporter.NewS3Uploader(context.Background(), exporter.S3Config{
			Bucket: a.Config.Export.S3Bucket,
			Prefix: a.Config.Export.S3Prefix,
			Region: a.Config.Export.S3Region,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize S3 uploads: %w", err)
		}
		uploader = s3
	}

	a.JobQueue.Register(services.JobTypeDownload, services.NewDownloadRunner(
		jpmaqs.NewDownloader(client, a.Logger),
		a.Store,
		exporter.NewCSVWriter(a.Paths),
		uploader,
		a.Metrics,
		a.Logger,
	))
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()
	errorHandler := apierrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)

	// The WebSocket route only gets middleware that leaves the
	// ResponseWriter hijackable.
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	wsHandler := handlers.NewWebSocketHandler(a.WebSocketHub, a.Config.WebSocket,
		a.Config.Security.AllowedOrigins, a.Logger)
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).Handle("/ws", wsHandler)

	r.Method(http.MethodGet, "/metrics",
		handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, errorHandler))

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics, a.Logger).Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.corsConfig()))
		}
		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}
		r.Use(customMiddleware.Timeout(a.Config.Server.WriteTimeout, a.Logger))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		healthHandler := handlers.NewHealthHandler(a.Services.Health, a.Logger)
		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/version", healthHandler.Version)

		validation := customMiddleware.NewValidationMiddleware(a.Logger, errorHandler)
		r.Route("/api/v1", func(r chi.Router) {
			r.Mount("/panel", handlers.NewPanelHandler(a.Services.Analysis, a.Services.Jobs,
				validation, errorHandler, a.Logger).Routes())
			r.Mount("/jobs", handlers.NewJobsHandler(a.Services.Jobs, validation, errorHandler, a.Logger).Routes())
			r.Mount("/series", handlers.NewSeriesHandler(a.Services.Series, validation, errorHandler, a.Logger).Routes())
			r.Mount("/exports", handlers.NewExportsHandler(files.NewCatalogue(a.Paths.ExportsDir), errorHandler, a.Logger).Routes())
		})
	})

	a.Router = r
}

func (a *Application) corsConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		ExposedHeaders:   []string{"X-Request-ID", "Location"},
		AllowCredentials: true,
		MaxAge:           300,
		Logger:           a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Server.Addr(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the background workers and the HTTP server. A listener
// failure cancels ctx through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("version", Version),
		slog.String("address", a.Server.Addr),
		slog.String("store", a.Config.Store.Driver),
		slog.Bool("downloads", a.DataQuery != nil))

	a.JobQueue.Start(ctx)
	go a.Runtime.Start(ctx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	select {
	case <-a.stopped:
		return nil
	default:
		close(a.stopped)
	}
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		firstErr = fmt.Errorf("server shutdown error: %w", err)
	}

	if err := a.JobQueue.Stop(a.Config.Server.ShutdownTimeout); err != nil {
		a.Logger.ErrorContext(ctx, "Failed to stop job queue gracefully", slog.String("error", err.Error()))
	}
	a.WebSocketHub.Stop()
	a.Runtime.Stop()

	if err := a.Store.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "Error closing store", slog.String("error", err.Error()))
	}
	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return firstErr
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
	}
	return a.Stop(context.Background())
}
