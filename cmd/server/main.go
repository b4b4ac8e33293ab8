package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/toptalkers/pkg/config"
	"github.com/nicktill/toptalkers/pkg/httpx"
	"github.com/nicktill/toptalkers/pkg/rollup"
	"github.com/nicktill/toptalkers/pkg/server"
	"github.com/nicktill/toptalkers/pkg/server/monitor"
)

const (
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 40 * time.Second // above config.QueryTimeout
	shutdownTimeout    = 30 * time.Second
	limiterSweep       = time.Minute
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	log.Println("Starting top talkers server...")

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Configuration: storage limit = %d GB, memory limit = %d MB, in-memory = %v",
		cfg.MaxStorageGB, cfg.MaxMemoryMB, cfg.InMemory)

	// The server is useless without its store
	store, err := server.InitializeStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	storageMonitor := server.InitializeStorageMonitor(cfg, store)
	handlers := server.InitializeHandlers(store, storageMonitor)
	limiter := httpx.NewRateLimiter(config.RequestRateLimit, config.RequestRateBurst)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		handlers.Hub.Run(ctx)
	}()
	log.Println("WebSocket hub started for live bounds updates")

	wg.Add(1)
	go func() {
		defer wg.Done()
		server.BroadcastBounds(ctx, store, handlers.Hub)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		server.SweepLimiters(ctx, limiter, limiterSweep)
	}()

	// Rollup is optional; a nil monitor keeps it out of the health check
	var rollupMonitor *monitor.RollupMonitor
	stopRollup := make(chan bool)
	if cfg.Rollup.Enabled {
		var roller *rollup.Roller
		roller, rollupMonitor = server.InitializeRoller(store)
		wg.Add(1)
		go server.RunRollup(roller, rollupMonitor, cfg.Rollup.Backfill, stopRollup, &wg)
	} else {
		log.Println("Rollup disabled; coarse and timeseries buckets must be loaded externally")
	}

	// Start BadgerDB garbage collection (reclaims disk space)
	stopGC := make(chan bool)
	wg.Add(1)
	go server.RunBadgerGC(store, stopGC, &wg)

	router := mux.NewRouter()
	server.SetupRoutes(router, handlers, storageMonitor, rollupMonitor, limiter, cfg.Port)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%s", cfg.Port)
		log.Println("API endpoints:")
		log.Println("   GET  /times             - Data bounds")
		log.Println("   GET  /conversations     - Top talkers")
		log.Println("   GET  /protocols         - Top protocols")
		log.Println("   GET  /timeseries        - Resampled byte rate")
		log.Println("   POST /v1/ingest         - Ingest 5s samples")
		log.Println("   GET  /v1/ws             - Live bounds updates")
		log.Println("   GET  /v1/export         - Backup (JSON/CSV)")
		log.Println("   POST /v1/import         - Restore")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received...")

	// Cancel before wg.Wait() or the hub and broadcaster never return
	cancel()
	close(stopRollup)
	close(stopGC)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	log.Println("Gracefully shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown warning: %v", err)
	}

	log.Println("Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All background tasks stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Println("Some background tasks did not stop in time (forcing exit)")
	}

	log.Println("Server exited cleanly")
}
