package server

import (
	"fmt"
	"log"
	"os"

	"github.com/nicktill/toptalkers/pkg/api"
	"github.com/nicktill/toptalkers/pkg/config"
	"github.com/nicktill/toptalkers/pkg/export"
	"github.com/nicktill/toptalkers/pkg/ingest"
	"github.com/nicktill/toptalkers/pkg/rollup"
	"github.com/nicktill/toptalkers/pkg/server/monitor"
	"github.com/nicktill/toptalkers/pkg/service"
	"github.com/nicktill/toptalkers/pkg/storage"
	"github.com/nicktill/toptalkers/pkg/storage/badger"
)

// Handlers groups the HTTP handlers mounted by SetupRoutes.
type Handlers struct {
	API    *api.Handler
	Ingest *ingest.Handler
	Export *export.Handler
	Hub    *ingest.Hub
}

// LoadConfig loads configuration from path (may be empty) and the environment.
func LoadConfig(path string) (config.File, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.File{}, err
	}

	if !cfg.InMemory {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return config.File{}, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return cfg, nil
}

// InitializeStorage opens the BadgerDB store described by cfg.
func InitializeStorage(cfg config.File) (*badger.Store, error) {
	if cfg.InMemory {
		log.Println("Initializing in-memory BadgerDB storage (data is lost on exit)...")
	} else {
		log.Printf("Initializing BadgerDB storage in %s...", cfg.DataDir)
	}
	store, err := badger.New(badger.Config{
		Path:        cfg.DataDir,
		InMemory:    cfg.InMemory,
		MaxMemoryMB: cfg.MaxMemoryMB,
	})
	if err != nil {
		return nil, err
	}
	log.Println("BadgerDB storage initialized successfully")
	return store, nil
}

// InitializeStorageMonitor measures the data directory, or the store's own
// size estimate when running in memory.
func InitializeStorageMonitor(cfg config.File, store storage.Store) *monitor.StorageMonitor {
	if cfg.InMemory {
		return monitor.NewStatsMonitor(store, cfg.MaxStorageBytes())
	}
	return monitor.NewStorageMonitor(cfg.DataDir, cfg.MaxStorageBytes())
}

// InitializeHandlers creates and configures all request handlers.
func InitializeHandlers(store storage.Store, storageMonitor *monitor.StorageMonitor) Handlers {
	svc := service.New(store, service.DefaultConfig)
	apiHandler := api.NewHandler(svc)
	log.Println("Query handler created")

	hub := ingest.NewHub()
	ingestHandler := ingest.NewHandler(store)
	ingestHandler.SetStorageChecker(storageMonitor)
	ingestHandler.SetCardinalityTracker(ingest.NewCardinalityTracker(ingest.DefaultCardinalityLimits))
	ingestHandler.SetHub(hub)
	log.Println("Ingest handler created with cardinality protection, storage limits and bounds streaming")

	exportHandler := export.NewHandler(store)
	log.Println("Export/Import handler created (JSON & CSV backup support)")

	return Handlers{
		API:    apiHandler,
		Ingest: ingestHandler,
		Export: exportHandler,
		Hub:    hub,
	}
}

// InitializeRoller creates the hourly roller with health monitoring.
func InitializeRoller(store storage.Store) (*rollup.Roller, *monitor.RollupMonitor) {
	roller := rollup.New(store)
	rollupMonitor := &monitor.RollupMonitor{}
	log.Printf("Rollup engine ready (runs every %v, %v after the hour)", config.RollupInterval, config.RollupDelay)
	return roller, rollupMonitor
}
