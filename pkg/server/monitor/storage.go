package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nicktill/toptalkers/pkg/storage"
)

// StorageMonitor tracks storage usage with caching to avoid expensive filesystem calls.
type StorageMonitor struct {
	usage         func() (int64, error)
	maxBytes      int64
	cachedUsage   int64
	lastCheck     time.Time
	cacheDuration time.Duration
	mu            sync.Mutex
}

// NewStorageMonitor measures the on-disk size of dataDir.
func NewStorageMonitor(dataDir string, maxBytes int64) *StorageMonitor {
	return &StorageMonitor{
		usage:         func() (int64, error) { return calculateDirSize(dataDir) },
		maxBytes:      maxBytes,
		cacheDuration: 10 * time.Second,
	}
}

// NewStatsMonitor measures usage from the store's own size estimate, for
// stores without a data directory (in-memory mode).
func NewStatsMonitor(store storage.Store, maxBytes int64) *StorageMonitor {
	return &StorageMonitor{
		usage: func() (int64, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			stats, err := store.Stats(ctx)
			if err != nil {
				return 0, err
			}
			return int64(stats.SizeBytes), nil
		},
		maxBytes:      maxBytes,
		cacheDuration: 10 * time.Second,
	}
}

// GetUsage returns current storage usage in bytes (cached for 10s).
func (sm *StorageMonitor) GetUsage() (int64, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if time.Since(sm.lastCheck) < sm.cacheDuration {
		return sm.cachedUsage, nil
	}

	usage, err := sm.usage()
	if err != nil {
		return 0, err
	}

	sm.cachedUsage = usage
	sm.lastCheck = time.Now()
	return usage, nil
}

// GetLimit returns the configured storage limit in bytes.
func (sm *StorageMonitor) GetLimit() int64 {
	return sm.maxBytes
}

// calculateDirSize sums allocated disk usage (not logical size) under path.
func calculateDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += diskUsage(filePath, info)
		}
		return nil
	})
	return size, err
}
