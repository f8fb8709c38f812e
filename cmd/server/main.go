package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/puppyone-ai/puppyone-sub007/internal/api"
	"github.com/puppyone-ai/puppyone-sub007/internal/auth"
	"github.com/puppyone-ai/puppyone-sub007/internal/config"
	"github.com/puppyone-ai/puppyone-sub007/internal/logging"
	"github.com/puppyone-ai/puppyone-sub007/internal/materializer"
	"github.com/puppyone-ai/puppyone-sub007/internal/mcp"
	"github.com/puppyone-ai/puppyone-sub007/internal/partition"
	"github.com/puppyone-ai/puppyone-sub007/internal/rebuild"
	"github.com/puppyone-ai/puppyone-sub007/internal/repository"
	"github.com/puppyone-ai/puppyone-sub007/internal/services"
	"github.com/puppyone-ai/puppyone-sub007/internal/storage"
	"github.com/puppyone-ai/puppyone-sub007/internal/templates"
)

func main() {
	ctx := context.Background()

	envFile := flag.String("env", "", "Path to .env file")
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*envFile, *configFile)
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	logger, err := logging.NewLogger(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("Logger initialization failed: %v", err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"templates_dir", cfg.Templates.Dir,
		"storage_url", cfg.Storage.BaseURL,
		"deployment_mode", cfg.Storage.DeploymentMode,
		"embedding_url", cfg.Embedding.URL,
	)

	var (
		store    repository.InstantiationStore
		recorder materializer.Recorder
	)
	if cfg.DB.Enable {
		dbPool, err := initDatabase(ctx, cfg, logger)
		if err != nil {
			logger.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		pgStore := repository.NewPostgresInstantiationStore(dbPool)
		if err := pgStore.Migrate(ctx); err != nil {
			logger.Error("Failed to migrate database", "error", err)
			os.Exit(1)
		}
		store, recorder = pgStore, pgStore
		logger.Info("Database connected")
	}

	var embedder services.Embedder = services.NewDeferredEmbedder(logger)
	if cfg.Embedding.URL != "" {
		embedder = services.NewHTTPEmbeddingClient(cfg.Embedding.URL, cfg.Embedding.Timeout)
	}

	source := templates.NewFSSource(cfg.Templates.Dir)
	loader := materializer.NewLoader(materializer.Options{
		Source: source,
		Transfer: storage.NewClient(storage.Config{
			BaseURL:         cfg.Storage.BaseURL,
			DeploymentMode:  cfg.Storage.DeploymentMode,
			DevToken:        cfg.Storage.DevToken,
			PartConcurrency: cfg.Storage.PartConcurrency,
			Timeout:         cfg.Storage.Timeout,
		}, logger.With("component", "storage")),
		Partitioner:      partition.New(cfg.Materializer.PartSize),
		Rebuilder:        rebuild.NewOrchestrator(embedder, logger.With("component", "rebuild")),
		Recorder:         recorder,
		StorageThreshold: cfg.Materializer.StorageThreshold,
		Logger:           logger.With("component", "materializer"),
	})

	logger.Info("Service layer initialized")

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("template-materializer"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	authz, err := auth.New(ctx, cfg, logger.With("component", "auth"))
	if err != nil {
		logger.Error("failed to initialize auth", "error", err)
		os.Exit(1)
	}

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))

	apiHandler := api.NewHandler(loader, source, store)
	e.GET("/health", apiHandler.HandleHealth)

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	api.RegisterHandlers(apiGroup, apiHandler)

	logger.Info("REST API handlers mounted")

	mcpServer := mcp.NewServer(loader)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp*", echo.WrapHandler(authz.RequireAuth(mcpHandlers)))

	logger.Info("MCP protocol handlers mounted")

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
