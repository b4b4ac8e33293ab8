package config

import "time"

// Server defaults
const (
	DefaultPort         = "8080"
	DefaultDataDir      = "./data/toptalkers"
	DefaultMaxStorageGB = 1
	DefaultMaxMemoryMB  = 48
)

// Rollup intervals
const (
	RollupInterval   = 1 * time.Hour
	RollupDelay      = 5 * time.Minute // wait for late 5s samples before rolling an hour
	BadgerGCInterval = 10 * time.Minute
)

// Query timeouts and defaults
const (
	QueryTimeout     = 30 * time.Second
	BoundsTimeout    = 5 * time.Second
	MaxSeriesPoints  = 5000
	DefaultMaxHosts  = 200
	MaxQueryWindow   = 365 * 24 * time.Hour
	RequestRateLimit = 50 // requests per second per client
	RequestRateBurst = 100
)

// Ingest timeouts and limits
const (
	IngestTimeout        = 5 * time.Second
	IngestMaxRecords     = 10000
	IngestMaxAddressLen  = 255
	IngestMaxAppLen      = 64
	IngestMaxRequestSize = 10 << 20

	IngestMaxConversations = 100000
	IngestMaxApplications  = 1000
	CardinalityRetention   = 24 * time.Hour
)

// Export defaults and limits
const (
	DefaultExportWindow = 24 * time.Hour
	MaxExportWindow     = 30 * 24 * time.Hour
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)
