package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bookline/task-service/internal/store"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Broker   string `json:"broker"`
}

// HealthCheck reports database and broker reachability
// @Summary Health check
// @Description Reports whether the store and execution transport are reachable
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{Status: "ok"}
	healthy := true

	if store.Pool() != nil {
		if err := store.Status(c.Request.Context()); err != nil {
			response.Database = "disconnected"
			healthy = false
		} else {
			response.Database = "connected"
		}
	} else {
		response.Database = "not configured"
		healthy = false
	}

	if h.broker != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()
		if err := h.broker.Ping(ctx); err != nil {
			response.Broker = "disconnected"
			healthy = false
		} else {
			response.Broker = "connected"
		}
	} else {
		response.Broker = "not configured"
	}

	if !healthy {
		response.Status = "degraded"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}
