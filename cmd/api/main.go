package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agrivo/farmcore/internal/config"
	"github.com/agrivo/farmcore/internal/database"
	"github.com/agrivo/farmcore/internal/handlers"
	"github.com/agrivo/farmcore/internal/localstore"
	"github.com/agrivo/farmcore/internal/records"
	"github.com/agrivo/farmcore/internal/schema"
	"github.com/agrivo/farmcore/internal/syncengine"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Configure the primary store. The connection is lazy, so this
	// succeeds even while MySQL is unreachable and the API boots
	// straight into degraded mode.
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to configure database: %v", err)
	}

	// 3. Open the local durable cache
	store, err := localstore.Open(cfg.Cache.Path)
	if err != nil {
		log.Fatalf("Failed to open local cache: %v", err)
	}

	// 4. Wire the record engine over the introspected schema cache
	schemaCache := schema.NewCache()
	introspector := schema.NewIntrospector(db.DB, schemaCache)
	recordEngine := records.NewEngine(db.DB, introspector)

	// 5. Sync engine and optional background replay
	syncEngine := syncengine.NewEngine(recordEngine, store)
	var scheduler *syncengine.Scheduler
	if cfg.Sync.ScheduleEnabled {
		scheduler = syncengine.NewScheduler(syncEngine, cfg.Sync)
		if err := scheduler.Start(); err != nil {
			log.Printf("⚠️ Sync scheduler failed to start: %v", err)
			scheduler = nil
		}
	}

	// Report initial store reachability; either way the API serves
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := db.Ping(pingCtx); err != nil {
		log.Printf("⚠️ Primary store unreachable at startup, serving from local cache: %v", err)
	} else {
		log.Println("✅ Primary store reachable")
	}
	pingCancel()

	// 6. Set up HTTP router
	router := handlers.NewRouter(db, store, recordEngine, syncEngine, introspector, cfg)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on port %s (%s)", cfg.Port, cfg.NodeEnv)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sig := <-shutdown
	log.Printf("⚠️ Received signal: %v. Shutting down gracefully...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Server shutdown error: %v", err)
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	if err := store.Close(); err != nil {
		log.Printf("⚠️ Local cache close error: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("⚠️ Database close error: %v", err)
	}

	log.Println("🛑 Server stopped")
}
