package handler

import (
	"net/http"
	"time"

	"racehub/pkg/logger"
	"racehub/pkg/redis"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	redisClient *redis.Client
	logger      *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(redisClient *redis.Client, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{
		redisClient: redisClient,
		logger:      logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Service   string    `json:"service"`
	Redis     string    `json:"redis,omitempty"`
	Snapshot  string    `json:"snapshot,omitempty"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Service:   "racehub",
	}

	if h.redisClient != nil {
		if err := h.redisClient.Health(r.Context()); err != nil {
			h.logger.WithError(err).Warn("Redis health check failed")
			response.Redis = "unavailable"
		} else {
			response.Redis = "ok"
			key := h.redisClient.KeyBuilder.KeyLastSnapshot()
			if n, err := h.redisClient.Exists(r.Context(), key); err == nil && n > 0 {
				response.Snapshot = "saved"
			} else {
				response.Snapshot = "none"
			}
		}
	}

	respondJSON(w, http.StatusOK, response)
}
