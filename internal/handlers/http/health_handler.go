package http

import (
	"net/http"
	"time"

	"tradecast/internal/core/ports"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	conns   ports.ConnectionRegistry
	streams ports.StreamRegistry
	started time.Time
}

func NewHealthHandler(conns ports.ConnectionRegistry, streams ports.StreamRegistry) *HealthHandler {
	return &HealthHandler{conns: conns, streams: streams, started: time.Now()}
}

func (h *HealthHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"timestamp":      time.Now().Unix(),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"connections":    h.conns.Count(),
		"live_streams":   len(h.streams.ListLive()),
	})
}
