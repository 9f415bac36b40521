package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aescanero/dago-node-llmworker/internal/broker"
	"go.uber.org/zap"
)

// HealthServer provides HTTP health check endpoints
type HealthServer struct {
	port   int
	broker broker.Client
	worker *Worker
	logger *zap.Logger
	server *http.Server
}

// NewHealthServer creates a new health server
func NewHealthServer(port int, b broker.Client, w *Worker, logger *zap.Logger) *HealthServer {
	return &HealthServer{
		port:   port,
		broker: b,
		worker: w,
		logger: logger,
	}
}

// Handler returns the health endpoints
func (hs *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/ready", hs.handleReady)
	return mux
}

// Start starts the health check server
func (hs *HealthServer) Start() error {
	hs.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", hs.port),
		Handler:           hs.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	hs.logger.Info("starting health server", zap.Int("port", hs.port))

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			hs.logger.Error("health server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the health check server
func (hs *HealthServer) Stop() error {
	if hs.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hs.logger.Info("stopping health server")
	return hs.server.Shutdown(ctx)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	WorkerID string            `json:"worker_id,omitempty"`
	State    State             `json:"state,omitempty"`
	Checks   map[string]string `json:"checks,omitempty"`
	Stats    *Stats            `json:"stats,omitempty"`
}

// handleHealth handles the /health endpoint
func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Checks: make(map[string]string)}
	if hs.worker != nil {
		stats := hs.worker.Stats()
		resp.WorkerID = hs.worker.ID()
		resp.State = hs.worker.State()
		resp.Stats = &stats
	}

	// Check broker connection
	if err := hs.broker.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Checks["redis"] = fmt.Sprintf("unhealthy: %v", err)
		hs.respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Checks["redis"] = "healthy"

	if resp.State == StateStopped {
		resp.Status = "unhealthy"
		resp.Checks["worker"] = "stopped"
		hs.respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	// All checks passed
	resp.Status = "healthy"
	hs.respondJSON(w, http.StatusOK, resp)
}

// handleReady handles the /ready endpoint
func (hs *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	// Check if the broker is ready
	if err := hs.broker.Ping(ctx); err != nil {
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "not ready",
		})
		return
	}

	// Ready once the consumer groups exist and the loop is polling
	if hs.worker != nil {
		switch state := hs.worker.State(); state {
		case StateStarting, StateDraining, StateStopped:
			hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "not ready",
				State:  state,
			})
			return
		}
	}

	hs.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ready",
	})
}

// respondJSON writes a JSON response
func (hs *HealthServer) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("failed to encode response", zap.Error(err))
	}
}
