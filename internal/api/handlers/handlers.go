// Package handlers implements the HTTP endpoints of the display service.
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-display-go/internal/config"
	"github.com/frostdev-ops/pma-display-go/internal/core/engine"
	"github.com/frostdev-ops/pma-display-go/internal/core/pagestore"
	"github.com/frostdev-ops/pma-display-go/internal/websocket"
	"github.com/frostdev-ops/pma-display-go/pkg/utils"
	"github.com/frostdev-ops/pma-display-go/pkg/version"
)

// Handlers bundles the dependencies shared by all endpoints.
type Handlers struct {
	cfg     *config.Config
	engine  *engine.Service
	store   *pagestore.Store
	hub     *websocket.Hub
	logger  *logrus.Logger
	started time.Time
}

// NewHandlers creates the handler set. store and hub may be nil.
func NewHandlers(cfg *config.Config, eng *engine.Service, store *pagestore.Store, hub *websocket.Hub, logger *logrus.Logger) *Handlers {
	return &Handlers{
		cfg:     cfg,
		engine:  eng,
		store:   store,
		hub:     hub,
		logger:  logger,
		started: time.Now(),
	}
}

// Health reports service liveness plus host resource usage.
func (h *Handlers) Health(c *gin.Context) {
	health := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "pma-display-go",
		"version":   version.Get(),
		"uptime":    time.Since(h.started).String(),
		"displays":  h.engine.Targets(),
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		health["memory_percent"] = memInfo.UsedPercent
	}
	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		health["cpu_percent"] = cpuPercent[0]
	}
	if h.hub != nil {
		health["websocket_clients"] = h.hub.GetClientCount()
	}

	c.JSON(200, health)
}

// WebSocketHandler upgrades the connection and attaches it to the hub.
func (h *Handlers) WebSocketHandler(c *gin.Context) {
	if h.hub == nil {
		utils.SendError(c, 503, "websocket hub not available")
		return
	}
	websocket.HandleWebSocket(h.hub, c.Writer, c.Request)
}
