/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the points ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Initialize SQLite store
  3. Create ledger engine with the configured controllers
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML configuration file
  -addr    Listen address (overrides config)
  -db      SQLite database path (overrides config, ":memory:" works)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (configurable timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database and one controller
  PL_CONTROLLERS=admin-principal ./server -db=./data/points.db

  # Run with a config file
  ./server -config=./points.yaml

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration sources
*/
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/points-ledger/api"
	"github.com/warp/points-ledger/config"
	"github.com/warp/points-ledger/ledger"
	"github.com/warp/points-ledger/logging"
	"github.com/warp/points-ledger/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	log := logging.New(cfg.Logging)

	if len(cfg.Ledger.Controllers) == 0 {
		log.Warn("no controllers configured; service bootstrap will be impossible")
	}

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize engine
	controllers := make([]ledger.Principal, len(cfg.Ledger.Controllers))
	for i, c := range cfg.Ledger.Controllers {
		controllers[i] = ledger.Principal(c)
	}
	engine := ledger.NewEngine(store, controllers)

	// Create router
	handler := api.NewHandler(engine, log)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout),
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", "addr", cfg.Server.Addr, "db", cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
