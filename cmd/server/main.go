/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Crux rating engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults -> YAML file -> env)
  2. Initialize SQLite store
  3. Seed the persisted feed from CRUX_FEED_PATH if set
  4. Run an incremental replay so ratings are current
  5. Start HTTP server with graceful shutdown

CONFIGURATION (env prefix CRUX_):
  CRUX_ADDR            Listen address (default :8080)
  CRUX_DB_PATH         SQLite database path (default crux.db,
                       ":memory:" for ephemeral runs)
  CRUX_FEED_PATH       Optional normalized results JSON to seed the feed
  CRUX_K_FACTOR        ELO K-factor (default 32)
  CRUX_INITIAL_RATING  First-appearance rating (default 1500)
  CRUX_METRICS_ENABLED Expose /metrics (default true)
  CRUX_CONFIG          Optional YAML config file

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crux/rating-engine/api"
	"github.com/crux/rating-engine/config"
	"github.com/crux/rating-engine/feed"
	"github.com/crux/rating-engine/metrics"
	"github.com/crux/rating-engine/rating"
	"github.com/crux/rating-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if cfg.FeedPath != "" {
		if err := seedFeed(ctx, store, cfg.FeedPath); err != nil {
			log.Fatalf("Failed to seed feed from %s: %v", cfg.FeedPath, err)
		}
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	handler := api.NewHandler(store, m)
	handler.Engine.Params = rating.Params{
		K:       cfg.KFactor,
		Initial: decimal.NewFromFloat(cfg.InitialRating),
	}

	// Catch up on anything appended while the server was down.
	comps, err := store.Competitions(ctx)
	if err != nil {
		log.Fatalf("Failed to load feed: %v", err)
	}
	result, err := handler.Engine.Replay(ctx, comps)
	if err != nil {
		log.Fatalf("Startup replay failed: %v", err)
	}
	log.Printf("Startup replay: %d processed, %d rejected", len(result.Processed), len(result.Rejected))

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// seedFeed loads a normalized results file into the persisted feed.
// Competitions already present are skipped so re-seeding is idempotent.
func seedFeed(ctx context.Context, store *sqlite.Store, path string) error {
	source, err := feed.LoadFile(path)
	if err != nil {
		return err
	}
	comps, err := source.Competitions(ctx)
	if err != nil {
		return err
	}

	for _, comp := range comps {
		if verr := comp.Validate(); verr != nil {
			log.Printf("Skipping malformed competition in seed file: %v", verr)
			continue
		}
		if err := store.SaveCompetition(ctx, comp); err != nil {
			if errors.Is(err, rating.ErrAlreadyProcessed) {
				continue
			}
			return err
		}
	}
	log.Printf("Seeded feed with %d competitions from %s", len(comps), path)
	return nil
}
