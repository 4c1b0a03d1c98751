/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the MSA reconciliation service. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite rate store (and seed the MSA schedule if empty)
  3. Build the scoring client when an endpoint is configured
  4. Create API handler with dependencies
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port        HTTP server port (default: 8080)
  -db          SQLite database path (default: rates.db)
               Use ":memory:" for an in-memory database
  -scorer-url  Remote anomaly scoring endpoint. Empty disables the
               remote tier; the engine falls back to local statistics.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database, no remote scorer
  ./server -db="./data/rates.db"

  # Run with a remote scoring endpoint
  ./server -scorer-url="http://scoring.internal/invocations"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Rate schedule store
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/auditworks/recon-engine/api"
	"github.com/auditworks/recon-engine/recon"
	"github.com/auditworks/recon-engine/scoring"
	"github.com/auditworks/recon-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "rates.db", "SQLite database path")
	scorerURL := flag.String("scorer-url", "", "remote anomaly scoring endpoint (empty disables)")
	flag.Parse()

	cfg := recon.DefaultConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize rate store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Seed the MSA schedule on first run
	if err := store.Seed(context.Background(), cfg.EffectiveDate); err != nil {
		log.Fatalf("Failed to seed rate schedule: %v", err)
	}

	// Optional remote scorer
	var scorer recon.Scorer
	if *scorerURL != "" {
		scorer = scoring.NewClient(*scorerURL, scoring.WithLogger(logger))
	}

	// Initialize handler and router
	handler := api.NewHandler(store, scorer, cfg, logger)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Reconciliation service starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
