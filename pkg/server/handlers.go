package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/toptalkers/pkg/httpx"
	"github.com/nicktill/toptalkers/pkg/server/monitor"
)

var startTime = time.Now()

// StorageUsage represents current storage usage stats.
type StorageUsage struct {
	UsedBytes int64 `json:"used_bytes"`
	MaxBytes  int64 `json:"max_bytes"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string                `json:"status"`
	Version string                `json:"version"`
	Uptime  string                `json:"uptime"`
	Rollup  *monitor.RollupStatus `json:"rollup,omitempty"`
}

// handleHealth returns service health status. A nil monitor means the
// rollup task is disabled and does not affect health.
func handleHealth(rollupMonitor *monitor.RollupMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:  "healthy",
			Version: "1.0.0",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
		}
		statusCode := http.StatusOK

		if rollupMonitor != nil {
			status := rollupMonitor.Status()
			response.Rollup = &status
			if !status.Healthy {
				response.Status = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}

		httpx.RespondJSON(w, statusCode, response)
	}
}

// handleStorageUsage returns current storage usage.
func handleStorageUsage(monitor *monitor.StorageMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		usedBytes, err := monitor.GetUsage()
		if err != nil {
			httpx.RespondError(w, http.StatusInternalServerError, err)
			return
		}

		httpx.RespondJSON(w, http.StatusOK, StorageUsage{
			UsedBytes: usedBytes,
			MaxBytes:  monitor.GetLimit(),
		})
	}
}

// SetupRoutes configures all HTTP routes for the server. The query routes
// sit at the root where the viewer expects them; everything else is under /v1.
func SetupRoutes(
	router *mux.Router,
	handlers Handlers,
	storageMonitor *monitor.StorageMonitor,
	rollupMonitor *monitor.RollupMonitor,
	limiter *httpx.RateLimiter,
	port string,
) {
	router.Use(httpx.RequestID)
	router.Use(corsMiddleware(port))
	if limiter != nil {
		router.Use(limiter.Middleware)
	}

	// Query routes
	handlers.API.Register(router)

	v1 := router.PathPrefix("/v1").Subrouter()

	// Sample ingestion and live bounds
	v1.HandleFunc("/ingest", handlers.Ingest.HandleIngest).Methods("POST")
	v1.HandleFunc("/ws", handlers.Ingest.HandleWebSocket(handlers.Hub)).Methods("GET")

	// Backup & restore
	v1.HandleFunc("/export", handlers.Export.HandleExport).Methods("GET")
	v1.HandleFunc("/import", handlers.Export.HandleImport).Methods("POST")

	// Operations
	v1.HandleFunc("/storage", handleStorageUsage(storageMonitor)).Methods("GET")
	v1.HandleFunc("/cardinality", handlers.Ingest.HandleCardinalityStats).Methods("GET")
	v1.HandleFunc("/health", handleHealth(rollupMonitor)).Methods("GET")
}

// corsMiddleware creates CORS middleware that restricts to localhost origins only.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:" + port: true,
		"http://127.0.0.1:" + port: true,
		"http://localhost:3000":    true,
		"http://127.0.0.1:3000":    true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Only set CORS headers for allowed origins
			if allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+httpx.RequestIDHeader)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
