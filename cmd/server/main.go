package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/frostdev-ops/pma-display-go/internal/adapters/homeassistant"
	"github.com/frostdev-ops/pma-display-go/internal/api"
	"github.com/frostdev-ops/pma-display-go/internal/config"
	"github.com/frostdev-ops/pma-display-go/internal/core/engine"
	"github.com/frostdev-ops/pma-display-go/internal/core/framebuffer"
	"github.com/frostdev-ops/pma-display-go/internal/core/imagesource"
	"github.com/frostdev-ops/pma-display-go/internal/core/metrics"
	"github.com/frostdev-ops/pma-display-go/internal/core/pages"
	"github.com/frostdev-ops/pma-display-go/internal/core/pagestore"
	"github.com/frostdev-ops/pma-display-go/internal/core/render"
	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
	"github.com/frostdev-ops/pma-display-go/internal/core/rotation"
	"github.com/frostdev-ops/pma-display-go/internal/websocket"
	"github.com/frostdev-ops/pma-display-go/pkg/logger"
)

func main() {
	// Initialize logger
	log := logger.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	logger.SetLevel(log, cfg.Logging.Level)
	logger.SetFormat(log, cfg.Logging.Format)

	// Open the page template store (also runs migrations)
	store, err := pagestore.Open(pagestore.Config{
		Path:           cfg.Database.Path,
		MigrationsPath: cfg.Database.MigrationsPath,
		MaxConnections: cfg.Database.MaxConnections,
	}, log)
	if err != nil {
		log.Fatal("Failed to open page store:", err)
	}
	defer store.Close()

	if cfg.Database.TemplateSeedPath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if n, err := store.ImportYAML(ctx, cfg.Database.TemplateSeedPath); err != nil {
			log.WithError(err).Warn("Failed to import template seed file")
		} else {
			log.WithField("count", n).Info("Template seed imported")
		}
		cancel()
	}

	// Metrics
	collector := metrics.NewCollector(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Prefix:  cfg.Metrics.Prefix,
	}, nil)

	// Create WebSocket hub
	wsHub := websocket.NewHub(log)
	wsHub.SetCollector(collector)
	go wsHub.Run()

	// Expression resolver: Home Assistant templates when configured,
	// otherwise a static resolver that only sees page variables.
	var res resolver.Resolver
	if cfg.HomeAssistant.URL != "" && cfg.HomeAssistant.Token != "" {
		log.Info("Initializing Home Assistant template resolver")
		res = homeassistant.NewClient(homeassistant.Config{
			URL:   cfg.HomeAssistant.URL,
			Token: cfg.HomeAssistant.Token,
		}, log)
	} else {
		log.Warn("Home Assistant not configured, dynamic expressions resolve against page variables only")
		res = resolver.NewStatic(nil)
	}

	// Image pipeline
	policy := imagesource.PolicyStrict
	if cfg.Render.ImagePolicy == "permissive" {
		policy = imagesource.PolicyPermissive
	}
	images := imagesource.NewService(policy, imagesource.PrefixAllowList(cfg.Render.AllowedImagePrefixes), nil, log)
	images.SetCollector(collector)

	// Rendering engine
	renderer := render.NewRenderer(res, images, log)
	eng := engine.NewService(renderer, res, store, collector, wsHub.BroadcastEvent, log, engine.Options{
		QueueWarnDepth: cfg.Render.QueueWarnDepth,
	})
	defer eng.Close()

	// Register configured displays
	for _, d := range cfg.Displays {
		fb, err := framebuffer.New(d.Width, d.Height, nil, log)
		if err != nil {
			log.Fatal("Failed to create framebuffer:", err)
		}
		if err := eng.AddTarget(d.Name, fb); err != nil {
			log.Fatal("Failed to register display:", err)
		}
		if d.Rotation.Enabled {
			rotCfg, err := loadRotationConfig(d.Rotation)
			if err != nil {
				log.WithError(err).WithField("display", d.Name).Fatal("Failed to load rotation pages")
			}
			if err := eng.StartRotation(d.Name, rotCfg); err != nil {
				log.WithError(err).WithField("display", d.Name).Warn("Failed to start rotation")
			}
		}
	}

	// Initialize router
	router := api.NewRouter(cfg, eng, store, collector, wsHub, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Starting PMA Display on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Info("Server exited")
}

// loadRotationConfig reads a YAML (or JSON) page list from disk and parses
// it into a rotation configuration.
func loadRotationConfig(rc config.RotationConfig) (rotation.Config, error) {
	data, err := os.ReadFile(rc.PagesPath)
	if err != nil {
		return rotation.Config{}, err
	}
	var doc []interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return rotation.Config{}, fmt.Errorf("failed to parse %s: %w", rc.PagesPath, err)
	}

	cfg := rotation.Config{
		Enabled:         true,
		DefaultDuration: time.Duration(rc.DefaultDurationSeconds * float64(time.Second)),
	}
	for i, entry := range doc {
		raw, err := json.Marshal(entry)
		if err != nil {
			return rotation.Config{}, fmt.Errorf("pages[%d] in %s: %w", i, rc.PagesPath, err)
		}
		p, err := pages.ParsePage(raw)
		if err != nil {
			return rotation.Config{}, fmt.Errorf("pages[%d] in %s: %w", i, rc.PagesPath, err)
		}
		cfg.Pages = append(cfg.Pages, p)
	}
	return cfg, nil
}
