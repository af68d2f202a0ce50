/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ledger engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (env vars, optional .env)
  2. Initialize structured logger
  3. Initialize SQLite store
  4. Wire bookkeeping service, VAT exporter, metrics
  5. Configure HTTP router
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

CONFIGURATION (environment variables):
  PORT                HTTP server port (default: 8080)
  LOG_LEVEL           zap log level (default: info)
  DB_PATH             SQLite database path (default: ledger.db)
                      Use ":memory:" for in-memory database
  ORG_NUMBER          Organisation number stamped into VAT exports
  PROGRAM_NAME        Sender program name in VAT exports
  NUMBER_RETRY_LIMIT  Retries after a series number collision

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fjorda/ledger-engine/api"
	"github.com/fjorda/ledger-engine/bookkeeping"
	"github.com/fjorda/ledger-engine/config"
	"github.com/fjorda/ledger-engine/observability"
	"github.com/fjorda/ledger-engine/store/sqlite"
	"github.com/fjorda/ledger-engine/vat"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	metrics := observability.NewMetrics()

	// Wire service and engines
	svc := bookkeeping.NewService(store,
		bookkeeping.WithAuditLog(store),
		bookkeeping.WithLogger(logger),
		bookkeeping.WithMetrics(metrics),
		bookkeeping.WithRetryLimit(cfg.NumberRetryLimit),
	)

	handler := api.NewHandler(svc, vat.NewExporter(cfg.ProgramName),
		api.WithHandlerLogger(logger),
		api.WithHandlerMetrics(metrics),
		api.WithOrgNumber(cfg.OrgNumber),
		api.WithDefaultSeries(cfg.DefaultSeries),
		api.WithPeriodLocker(store),
		api.WithAuditReader(store),
	)

	router := api.NewRouter(handler, logger, metrics)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("db_path", cfg.DBPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
