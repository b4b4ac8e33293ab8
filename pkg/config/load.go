package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// File is the server configuration, read from YAML and then overridden by
// environment variables.
type File struct {
	Port         string `yaml:"port"`
	DataDir      string `yaml:"data_dir"`
	MaxStorageGB int64  `yaml:"max_storage_gb"`
	MaxMemoryMB  int64  `yaml:"max_memory_mb"`
	InMemory     bool   `yaml:"in_memory"`

	Rollup RollupConfig `yaml:"rollup"`
}

// RollupConfig controls the hourly rollup task
type RollupConfig struct {
	Enabled bool `yaml:"enabled"`
	// Hours to backfill on startup
	Backfill int `yaml:"backfill_hours"`
}

// Defaults returns the configuration used when no file is given
func Defaults() File {
	return File{
		Port:         DefaultPort,
		DataDir:      DefaultDataDir,
		MaxStorageGB: DefaultMaxStorageGB,
		MaxMemoryMB:  DefaultMaxMemoryMB,
		Rollup: RollupConfig{
			Enabled:  true,
			Backfill: 24,
		},
	}
}

// Load reads path (if non-empty) over the defaults and applies environment
// overrides: PORT, TOPTALKERS_DATA_DIR, TOPTALKERS_MAX_STORAGE_GB,
// TOPTALKERS_MAX_MEMORY_MB, TOPTALKERS_IN_MEMORY.
func Load(path string) (File, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return File{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return File{}, fmt.Errorf("failed to unmarshal config YAML: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if dir := os.Getenv("TOPTALKERS_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	cfg.MaxStorageGB = getEnvInt64("TOPTALKERS_MAX_STORAGE_GB", cfg.MaxStorageGB)
	cfg.MaxMemoryMB = getEnvInt64("TOPTALKERS_MAX_MEMORY_MB", cfg.MaxMemoryMB)
	if val := os.Getenv("TOPTALKERS_IN_MEMORY"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			cfg.InMemory = parsed
		} else {
			log.Printf("Invalid value for TOPTALKERS_IN_MEMORY: %q, ignoring", val)
		}
	}

	if cfg.Port == "" {
		return File{}, fmt.Errorf("port must not be empty")
	}
	if cfg.MaxStorageGB <= 0 {
		return File{}, fmt.Errorf("max_storage_gb must be positive, got %d", cfg.MaxStorageGB)
	}
	return cfg, nil
}

// MaxStorageBytes returns the storage limit in bytes
func (f File) MaxStorageBytes() int64 {
	return f.MaxStorageGB * 1024 * 1024 * 1024
}

// getEnvInt64 gets an int64 from environment variable or returns default
func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
		log.Printf("Invalid value for %s: %q, using default %d", key, val, defaultValue)
	}
	return defaultValue
}
