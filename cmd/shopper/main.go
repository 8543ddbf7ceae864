// Shopper service - one shopper's cart across Samokat and Lavka.
// Keeps a pending cart locally until the cart service issues a cart, then
// serves the cart, the price comparison list and the shop recommendation.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cart-sync/internal/catalog"
	"cart-sync/internal/config"
	"cart-sync/internal/handler"
	"cart-sync/internal/localstore"
	"cart-sync/internal/middleware"
	"cart-sync/internal/optimize"
	"cart-sync/internal/reconcile"
	"cart-sync/internal/remote"
	"cart-sync/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("cart_service", cfg.Remote.BaseURL),
		slog.String("store_backend", cfg.Store.Backend),
		slog.Bool("chrome_tls", cfg.Remote.ChromeTLS),
	)

	client, err := remote.New(remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		Timeout: cfg.Remote.Timeout,
		Transport: transport.New(transport.Options{
			DialTimeout: cfg.Remote.Timeout,
			ChromeTLS:   cfg.Remote.ChromeTLS,
		}),
		MinAPIVersion: cfg.Remote.MinAPIVersion,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating cart service client: %w", err)
	}

	store, closeStore, err := createStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("creating pending store: %w", err)
	}
	defer closeStore.Close()

	cat := catalog.New(client, logger)
	cart := reconcile.New(reconcile.Config{
		Service:    client,
		Store:      store,
		Products:   cat,
		PendingKey: cfg.Store.PendingKey,
		Logger:     logger,
	})
	optimizer := optimize.New(client, cart, logger)

	h := handler.New(cart, cat, optimizer, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request id → logging → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Initialization runs once in the background; edits made meanwhile go to
	// the pending queue. A failed attempt is retried via POST /cart/init.
	initCtx, cancelInit := context.WithCancel(ctx)
	defer cancelInit()
	go func() {
		report, err := cart.Initialize(initCtx)
		if err != nil {
			logger.Error("cart initialization failed", slog.String("error", err.Error()))
			return
		}
		if report == nil {
			return
		}
		logger.Info("cart initialized",
			slog.String("cart_status", string(cart.Status())),
			slog.Int("migrated", report.Migrated),
			slog.Int("failed", len(report.Failed)),
		)
	}()

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		cancelInit()

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// createStore creates the pending store for the configured backend.
// The returned closer releases backend connections.
func createStore(ctx context.Context, cfg config.StoreConfig) (localstore.Store, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendFile:
		store, err := localstore.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, nopCloser{}, nil
	case config.BackendRedis:
		store, err := localstore.NewRedisStore(ctx, cfg.RedisAddr, "cart-sync:",
			localstore.WithPassword(cfg.RedisPassword),
			localstore.WithDB(cfg.RedisDB),
		)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.BackendMemory:
		return localstore.NewMemoryStore(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
