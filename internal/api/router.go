// Package api wires the HTTP surface of the display service.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-display-go/internal/api/handlers"
	"github.com/frostdev-ops/pma-display-go/internal/api/middleware"
	"github.com/frostdev-ops/pma-display-go/internal/config"
	"github.com/frostdev-ops/pma-display-go/internal/core/engine"
	"github.com/frostdev-ops/pma-display-go/internal/core/metrics"
	"github.com/frostdev-ops/pma-display-go/internal/core/pagestore"
	"github.com/frostdev-ops/pma-display-go/internal/websocket"
)

// NewRouter creates and configures the main HTTP router.
func NewRouter(cfg *config.Config, eng *engine.Service, store *pagestore.Store, collector *metrics.Collector, wsHub *websocket.Hub, logger *logrus.Logger) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.MetricsMiddleware(collector))

	h := handlers.NewHandlers(cfg, eng, store, wsHub, logger)

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", h.WebSocketHandler)

	api := router.Group("/api/v1")
	{
		api.POST("/render", h.RenderPage)

		displays := api.Group("/displays")
		{
			displays.GET("/", h.ListDisplays)
			displays.GET("/:name", h.DisplayStatus)
			displays.POST("/:name/rotation", h.StartRotation)
			displays.DELETE("/:name/rotation", h.StopRotation)
			displays.POST("/:name/override", h.ShowOverride)
			displays.DELETE("/:name/override", h.CancelOverride)
		}

		templates := api.Group("/templates")
		{
			templates.GET("/", h.ListTemplates)
			templates.GET("/:name", h.GetTemplate)
			templates.PUT("/:name", h.SaveTemplate)
			templates.DELETE("/:name", h.DeleteTemplate)
		}
	}

	return router
}
