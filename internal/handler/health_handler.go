// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wecassidy/T564/internal/config"
	"github.com/wecassidy/T564/internal/protocol"
	"github.com/wecassidy/T564/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	conn   *protocol.SerialConnection
	config *config.Config
	logger *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(conn *protocol.SerialConnection, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		conn:   conn,
		config: config,
		logger: utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/readyz", h.ReadinessCheck)
}

// HealthCheck reports service health including the serial link state
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	stats := h.conn.Stats()

	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Checks:    make(map[string]CheckResult),
	}

	if h.conn.IsOpen() {
		health.Checks["serial"] = CheckResult{
			Status:  "healthy",
			Message: "Serial link open",
			Data: map[string]interface{}{
				"bytes_read":    stats.BytesRead,
				"bytes_written": stats.BytesWritten,
				"error_count":   stats.ErrorCount,
				"last_activity": stats.LastActivity,
				"uptime":        stats.Uptime.String(),
			},
		}
	} else {
		health.Status = "unhealthy"
		health.Checks["serial"] = CheckResult{
			Status:  "unhealthy",
			Message: "Serial link closed",
		}
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// ReadinessCheck reports whether the instrument link can take traffic
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if !h.conn.IsOpen() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "serial link not open",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
